package domain

import (
	"fmt"
	"math"
)

// Category is the familiarity class derived from a device's history
type Category string

const (
	CategoryNew        Category = "new"
	CategoryRegular    Category = "regular"
	CategoryOccasional Category = "occasional"
	CategoryRare       Category = "rare"
	CategoryOffline    Category = "offline"
)

// Classification thresholds
const (
	// NewDeviceMaxScans - an online device with this many scans or fewer is always new
	NewDeviceMaxScans = 3
	// StreakMinScans is the unbroken online run needed for the streak bonus
	StreakMinScans = 15
	// StreakMinTotalScans is the lifetime scan count needed for the streak bonus
	StreakMinTotalScans = 20
	// StreakMinRate is the lifetime appearance rate needed for the streak bonus
	StreakMinRate = 0.4
	// RegularMinRate is the appearance rate at which a device becomes regular
	RegularMinRate = 0.65
	// OccasionalMinRate is the appearance rate at which a device becomes occasional
	OccasionalMinRate = 0.3
)

// NoHistoryReason is reported when a device has no stored history at all
const NoHistoryReason = "new device (no history)"

// ClassifyInput is everything the policy is allowed to look at
type ClassifyInput struct {
	TotalScans         int
	ScansSeenOnline    int
	ConsecutiveOffline int
	Online             bool
	// RecentStreak is the current unbroken online run; ignored when offline
	RecentStreak int
}

// Classify maps a device's counters and presence to a category and a
// human-readable justification. It reads nothing but its input.
func Classify(in ClassifyInput) (Category, string) {
	if !in.Online {
		if in.TotalScans == 0 {
			return CategoryOffline, "offline with no history"
		}
		rate := AppearanceRate(in.ScansSeenOnline, in.TotalScans)
		return CategoryOffline, fmt.Sprintf("offline (historically %d%% appearance)", percent(rate))
	}

	if in.TotalScans <= NewDeviceMaxScans {
		return CategoryNew, fmt.Sprintf("new device (seen %d times)", in.TotalScans)
	}

	rate := AppearanceRate(in.ScansSeenOnline, in.TotalScans)

	if in.RecentStreak >= StreakMinScans && in.TotalScans >= StreakMinTotalScans && rate >= StreakMinRate {
		return CategoryRegular, fmt.Sprintf("regular device (recent streak: %d scans, %d%% historical)",
			in.RecentStreak, percent(rate))
	}

	switch {
	case rate >= RegularMinRate:
		return CategoryRegular, fmt.Sprintf("regular device (%d%% appearance)", percent(rate))
	case rate >= OccasionalMinRate:
		return CategoryOccasional, fmt.Sprintf("occasional device (%d%% appearance)", percent(rate))
	default:
		return CategoryRare, fmt.Sprintf("rare device (%d%% appearance)", percent(rate))
	}
}

// ClassifyDevice classifies a stored device. A nil history is the new default.
func ClassifyDevice(d *Device, online bool) (Category, string) {
	if d == nil {
		return CategoryNew, NoHistoryReason
	}
	return Classify(ClassifyInput{
		TotalScans:         d.TotalScans,
		ScansSeenOnline:    d.ScansSeenOnline,
		ConsecutiveOffline: d.ConsecutiveOffline,
		Online:             online,
		RecentStreak:       d.ConsecutiveOnline,
	})
}

// percent rounds a 0..1 rate to a whole percentage
func percent(rate float64) int {
	return int(math.Round(rate * 100))
}
