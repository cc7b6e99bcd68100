// Package adapter implements the network-facing side of lanwatch.
//
// # Discovery
//
// A Source finds the devices currently visible on the local network.
// NmapDiscovery runs an nmap ping sweep (-sn) and is the most complete,
// but needs the nmap binary and works best with root privileges.
// ARPCacheDiscovery reads the kernel neighbor table and needs nothing.
//
// ChainDiscovery tries its sources in order and keeps the first result that
// succeeds. It fills in missing labels through reverse DNS and always
// includes the scanning machine itself, tagged with the "local" hardware id.
// The method label of the winning source is recorded with the scan.
//
// # Probing
//
// PortScanner runs bounded-concurrency TCP connect probes against a single
// address and reports the open ports with well-known service names. An open
// SSH port is fingerprinted by its host key.
//
// PiholeDetector checks whether a device with DNS and web ports open is a
// Pi-hole appliance by querying its admin endpoints.
package adapter
