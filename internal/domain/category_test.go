package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		in           ClassifyInput
		wantCategory Category
		wantReason   string
	}{
		{
			name:         "offline with no history",
			in:           ClassifyInput{Online: false},
			wantCategory: CategoryOffline,
			wantReason:   "offline with no history",
		},
		{
			name:         "offline reports historical rate",
			in:           ClassifyInput{TotalScans: 10, ScansSeenOnline: 2, ConsecutiveOffline: 3},
			wantCategory: CategoryOffline,
			wantReason:   "offline (historically 20% appearance)",
		},
		{
			name:         "offline ignores streak",
			in:           ClassifyInput{TotalScans: 40, ScansSeenOnline: 38, RecentStreak: 30},
			wantCategory: CategoryOffline,
			wantReason:   "offline (historically 95% appearance)",
		},
		{
			name:         "first sighting is new",
			in:           ClassifyInput{TotalScans: 1, ScansSeenOnline: 1, Online: true, RecentStreak: 1},
			wantCategory: CategoryNew,
			wantReason:   "new device (seen 1 times)",
		},
		{
			name:         "three scans with low rate is still new",
			in:           ClassifyInput{TotalScans: 3, ScansSeenOnline: 1, Online: true, RecentStreak: 1},
			wantCategory: CategoryNew,
			wantReason:   "new device (seen 3 times)",
		},
		{
			name:         "rate band regular",
			in:           ClassifyInput{TotalScans: 10, ScansSeenOnline: 8, Online: true, RecentStreak: 2},
			wantCategory: CategoryRegular,
			wantReason:   "regular device (80% appearance)",
		},
		{
			name:         "exact regular threshold",
			in:           ClassifyInput{TotalScans: 20, ScansSeenOnline: 13, Online: true, RecentStreak: 1},
			wantCategory: CategoryRegular,
			wantReason:   "regular device (65% appearance)",
		},
		{
			name:         "occasional band",
			in:           ClassifyInput{TotalScans: 10, ScansSeenOnline: 5, Online: true, RecentStreak: 1},
			wantCategory: CategoryOccasional,
			wantReason:   "occasional device (50% appearance)",
		},
		{
			name:         "exact occasional threshold",
			in:           ClassifyInput{TotalScans: 10, ScansSeenOnline: 3, Online: true, RecentStreak: 1},
			wantCategory: CategoryOccasional,
			wantReason:   "occasional device (30% appearance)",
		},
		{
			name:         "rare band",
			in:           ClassifyInput{TotalScans: 10, ScansSeenOnline: 2, Online: true, RecentStreak: 1},
			wantCategory: CategoryRare,
			wantReason:   "rare device (20% appearance)",
		},
		{
			name:         "streak promotes moderate rate",
			in:           ClassifyInput{TotalScans: 40, ScansSeenOnline: 18, Online: true, RecentStreak: 15},
			wantCategory: CategoryRegular,
			wantReason:   "regular device (recent streak: 15 scans, 45% historical)",
		},
		{
			name:         "streak of 14 does not promote",
			in:           ClassifyInput{TotalScans: 40, ScansSeenOnline: 18, Online: true, RecentStreak: 14},
			wantCategory: CategoryOccasional,
			wantReason:   "occasional device (45% appearance)",
		},
		{
			name:         "streak needs 20 total scans",
			in:           ClassifyInput{TotalScans: 19, ScansSeenOnline: 9, Online: true, RecentStreak: 15},
			wantCategory: CategoryOccasional,
			wantReason:   "occasional device (47% appearance)",
		},
		{
			name:         "streak needs 40 percent rate",
			in:           ClassifyInput{TotalScans: 50, ScansSeenOnline: 19, Online: true, RecentStreak: 15},
			wantCategory: CategoryOccasional,
			wantReason:   "occasional device (38% appearance)",
		},
		{
			name:         "streak label wins over rate band label",
			in:           ClassifyInput{TotalScans: 20, ScansSeenOnline: 20, Online: true, RecentStreak: 20},
			wantCategory: CategoryRegular,
			wantReason:   "regular device (recent streak: 20 scans, 100% historical)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, reason := Classify(tt.in)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestClassifyNewAlwaysWinsAtLowScanCounts(t *testing.T) {
	for total := 0; total <= NewDeviceMaxScans; total++ {
		for online := 0; online <= total; online++ {
			for streak := 0; streak <= 30; streak += 5 {
				category, _ := Classify(ClassifyInput{
					TotalScans:      total,
					ScansSeenOnline: online,
					Online:          true,
					RecentStreak:    streak,
				})
				assert.Equal(t, CategoryNew, category, "total=%d online=%d streak=%d", total, online, streak)
			}
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	in := ClassifyInput{TotalScans: 37, ScansSeenOnline: 21, Online: true, RecentStreak: 9}
	wantCategory, wantReason := Classify(in)
	for i := 0; i < 100; i++ {
		category, reason := Classify(in)
		assert.Equal(t, wantCategory, category)
		assert.Equal(t, wantReason, reason)
	}
}

func TestClassifyDevice(t *testing.T) {
	t.Run("nil history is new", func(t *testing.T) {
		category, reason := ClassifyDevice(nil, true)
		assert.Equal(t, CategoryNew, category)
		assert.Equal(t, NoHistoryReason, reason)
	})

	t.Run("uses consecutive online as streak", func(t *testing.T) {
		d := &Device{TotalScans: 30, ScansSeenOnline: 15, ConsecutiveOnline: 15}
		category, reason := ClassifyDevice(d, true)
		assert.Equal(t, CategoryRegular, category)
		assert.Contains(t, reason, "recent streak: 15 scans")
	})
}

func TestAppearanceRate(t *testing.T) {
	assert.Equal(t, 1.0, AppearanceRate(0, 0))
	assert.Equal(t, 0.8, AppearanceRate(8, 10))
	assert.Equal(t, 0.0, AppearanceRate(0, 4))

	d := &Device{TotalScans: 4, ScansSeenOnline: 1, ScansSeenOffline: 3, ConsecutiveOffline: 3}
	assert.Equal(t, 0.25, d.AppearanceRate())
	assert.True(t, d.CountersConsistent())

	d.ConsecutiveOnline = 1
	assert.False(t, d.CountersConsistent())
}

func TestCountByStatus(t *testing.T) {
	devices := []TrackedDevice{
		{DeviceStatus: DeviceStatusNew},
		{DeviceStatus: DeviceStatusExisting},
		{DeviceStatus: DeviceStatusOffline},
		{DeviceStatus: DeviceStatusNew},
	}
	assert.Equal(t, 2, CountByStatus(devices, DeviceStatusNew))
	assert.Equal(t, 1, CountByStatus(devices, DeviceStatusOffline))

	copied := CopyTracked(devices)
	copied[0].DeviceStatus = DeviceStatusOffline
	assert.Equal(t, DeviceStatusNew, devices[0].DeviceStatus)
	assert.NotNil(t, CopyTracked(nil))
}
