package adapter

// UnknownService is reported for ports without a well-known name
const UnknownService = "Unknown Service"

// DefaultPorts are probed when no port list is configured
var DefaultPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 143, 443, 445, 465, 587, 631,
	993, 995, 3306, 3389, 5432, 5900, 8080, 8443,
}

// wellKnownPorts maps common ports to service names
var wellKnownPorts = map[int]string{
	20:    "FTP Data Transfer",
	21:    "FTP Control",
	22:    "SSH (Secure Shell)",
	23:    "Telnet",
	25:    "SMTP (Email)",
	53:    "DNS",
	67:    "DHCP Server",
	68:    "DHCP Client",
	80:    "HTTP (Web)",
	110:   "POP3 (Email)",
	123:   "NTP (Time)",
	143:   "IMAP (Email)",
	161:   "SNMP",
	443:   "HTTPS (Secure Web)",
	445:   "SMB/CIFS (File Sharing)",
	465:   "SMTPS (Secure Email)",
	514:   "Syslog",
	587:   "SMTP (Email Submission)",
	631:   "IPP (Printing)",
	993:   "IMAPS (Secure Email)",
	995:   "POP3S (Secure Email)",
	1433:  "MS SQL Server",
	1521:  "Oracle Database",
	3306:  "MySQL Database",
	3389:  "RDP (Remote Desktop)",
	5000:  "UPnP",
	5432:  "PostgreSQL Database",
	5900:  "VNC (Remote Desktop)",
	6379:  "Redis Database",
	8080:  "HTTP Proxy/Alt",
	8443:  "HTTPS Alt",
	8888:  "HTTP Alt",
	9000:  "Various Services",
	27017: "MongoDB Database",
}

// ServiceName returns the well-known service on port
func ServiceName(port int) string {
	if name, ok := wellKnownPorts[port]; ok {
		return name
	}
	return UnknownService
}

// ValidPort reports whether p is a usable TCP port number
func ValidPort(p int) bool {
	return p >= 1 && p <= 65535
}
