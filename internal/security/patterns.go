// Package security implements threat inspection and risk classification for
// proposed tool invocations. Inspection scans parameter text against
// categorized threat patterns; classification escalates a tool's declared
// risk tier based on what the invocation actually touches.
package security

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/warden/pkg/models"
)

// threatPattern is one entry in a category's pattern table. Matching is
// substring-based unless a compiled regex is present. All matching runs
// against the lowercased parameter text.
type threatPattern struct {
	substring      string
	regex          *regexp.Regexp
	description    string
	recommendation string
}

// threatCategory groups the patterns for one threat type with the base
// severity a match produces.
type threatCategory struct {
	threatType models.ThreatType
	baseLevel  models.ThreatLevel
	patterns   []threatPattern
}

// threatCategories is scanned in order so inspection output is deterministic.
var threatCategories = []threatCategory{
	{
		threatType: models.ThreatMaliciousCommand,
		baseLevel:  models.ThreatLevelCritical,
		patterns: []threatPattern{
			{regex: regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f`), description: "recursive force delete", recommendation: "Verify the target path before allowing deletion"},
			{substring: "rm -rf /", description: "recursive delete from filesystem root", recommendation: "Block unless the root deletion is explicitly intended"},
			{substring: "mkfs", description: "filesystem creation over existing data", recommendation: "Confirm the target device is meant to be reformatted"},
			{substring: "dd if=/dev/zero", description: "disk overwrite with zeroes", recommendation: "Confirm the output device before allowing"},
			{substring: "dd if=/dev/random", description: "disk overwrite with random data", recommendation: "Confirm the output device before allowing"},
			{substring: ":(){ :|:& };:", description: "fork bomb", recommendation: "Deny; this only exhausts the system"},
			{substring: "> /dev/sd", description: "raw write to block device", recommendation: "Confirm the device write is intended"},
			{substring: "format c:", description: "windows drive format", recommendation: "Confirm the drive format is intended"},
			{regex: regexp.MustCompile(`del\s+/[fsq]`), description: "windows forced delete", recommendation: "Verify the target before allowing deletion"},
			{substring: "shred ", description: "secure file destruction", recommendation: "Verify the target file before allowing"},
		},
	},
	{
		threatType: models.ThreatPrivilegeEscalation,
		baseLevel:  models.ThreatLevelCritical,
		patterns: []threatPattern{
			{substring: "sudo su", description: "shell escalation to root", recommendation: "Run the specific command with least privilege instead"},
			{substring: "sudo -i", description: "interactive root shell", recommendation: "Run the specific command with least privilege instead"},
			{substring: "chmod 777", description: "world-writable permission grant", recommendation: "Grant the narrowest permission that works"},
			{regex: regexp.MustCompile(`chmod\s+-r\s+777`), description: "recursive world-writable permission grant", recommendation: "Grant the narrowest permission that works"},
			{substring: "chown root", description: "ownership transfer to root", recommendation: "Confirm root ownership is required"},
			{substring: "setuid", description: "setuid bit manipulation", recommendation: "Review why a setuid binary is needed"},
			{substring: "pkexec", description: "polkit privilege escalation", recommendation: "Review the escalated command"},
			{regex: regexp.MustCompile(`runas\s+/user:`), description: "windows run-as another user", recommendation: "Review the target account"},
			{substring: "net localgroup administrators", description: "windows admin group modification", recommendation: "Confirm the group change is intended"},
		},
	},
	{
		threatType: models.ThreatSensitiveFileAccess,
		baseLevel:  models.ThreatLevelHigh,
		patterns: []threatPattern{
			{substring: "/etc/passwd", description: "system account database access", recommendation: "Confirm why account data is needed"},
			{substring: "/etc/shadow", description: "password hash database access", recommendation: "Deny unless auditing credentials is the task"},
			{substring: "/etc/sudoers", description: "sudo policy access", recommendation: "Confirm why sudo policy is being read or changed"},
			{substring: "~/.ssh", description: "SSH key material access", recommendation: "Confirm key access is intended"},
			{substring: "id_rsa", description: "SSH private key access", recommendation: "Deny unless key management is the task"},
			{substring: "id_ed25519", description: "SSH private key access", recommendation: "Deny unless key management is the task"},
			{substring: ".aws/credentials", description: "cloud credential file access", recommendation: "Confirm credential access is intended"},
			{substring: ".gnupg", description: "GPG keyring access", recommendation: "Confirm keyring access is intended"},
			{substring: "/etc/ssl/private", description: "TLS private key directory access", recommendation: "Deny unless certificate management is the task"},
		},
	},
	{
		threatType: models.ThreatNetworkExfiltration,
		baseLevel:  models.ThreatLevelHigh,
		patterns: []threatPattern{
			{regex: regexp.MustCompile(`(curl|wget)[^|;&]*\|\s*(ba|z|da)?sh`), description: "remote script piped to shell", recommendation: "Download and review the script before running it"},
			{regex: regexp.MustCompile(`nc(at)?\s+-[a-z]*e`), description: "netcat with command execution", recommendation: "Deny; this opens a remote shell"},
			{substring: "/dev/tcp/", description: "bash network redirection", recommendation: "Review the destination host"},
			{regex: regexp.MustCompile(`base64[^|]*\|\s*curl`), description: "encoded data posted to remote host", recommendation: "Review what data is being sent"},
			{regex: regexp.MustCompile(`curl[^;|&]*\s(-d|--data|-t|--upload-file)\s`), description: "data upload to remote host", recommendation: "Review what data is being sent and where"},
		},
	},
	{
		threatType: models.ThreatCodeExecution,
		baseLevel:  models.ThreatLevelHigh,
		patterns: []threatPattern{
			{substring: "eval(", description: "dynamic code evaluation", recommendation: "Review the evaluated expression"},
			{substring: "exec(", description: "dynamic code execution", recommendation: "Review the executed code"},
			{substring: "os.system", description: "shell command from interpreter", recommendation: "Review the shell command"},
			{substring: "subprocess.", description: "subprocess spawn from interpreter", recommendation: "Review the spawned command"},
			{regex: regexp.MustCompile(`\bpython[23]?\s+-c\b`), description: "inline python execution", recommendation: "Review the inline code"},
			{regex: regexp.MustCompile(`\b(ba)?sh\s+-c\b`), description: "inline shell execution", recommendation: "Review the inline command"},
			{regex: regexp.MustCompile(`powershell[^;]*-enc`), description: "encoded powershell execution", recommendation: "Decode and review the command"},
		},
	},
	{
		threatType: models.ThreatSystemModification,
		baseLevel:  models.ThreatLevelHigh,
		patterns: []threatPattern{
			{substring: "/etc/fstab", description: "mount table modification", recommendation: "Confirm the mount change is intended"},
			{substring: "crontab -r", description: "removal of all scheduled jobs", recommendation: "Confirm wiping the crontab is intended"},
			{regex: regexp.MustCompile(`iptables\s+-f`), description: "firewall rules flush", recommendation: "Confirm dropping all firewall rules is intended"},
			{regex: regexp.MustCompile(`sysctl\s+-w`), description: "kernel parameter change", recommendation: "Review the parameter being changed"},
			{regex: regexp.MustCompile(`systemctl\s+(disable|mask|stop)`), description: "system service shutdown", recommendation: "Confirm the service change is intended"},
			{regex: regexp.MustCompile(`reg\s+(add|delete)`), description: "windows registry modification", recommendation: "Review the registry change"},
			{regex: regexp.MustCompile(`\b(insmod|rmmod|modprobe)\b`), description: "kernel module manipulation", recommendation: "Confirm the module change is intended"},
		},
	},
}

// destructiveMarkers escalate any matched threat to Critical when the
// matched text contains one of them, regardless of the category's base level.
var destructiveMarkers = []string{
	"rm -rf",
	"format",
	"/dev/zero",
	"mkfs",
	"shred",
	"dd if=",
}

// SensitivePaths are filesystem prefixes scanned for file-like tools.
// Each hit produces a High SensitiveFileAccess threat on top of the
// category tables above.
var SensitivePaths = []string{
	"/etc/",
	"~/.ssh/",
	"/root/",
	"/boot/",
	"/var/log/",
	"/etc/ssl/",
	"c:\\windows\\system32",
}

// DangerousCommands are substrings that elevate a tool's risk one tier
// whatever the tool is.
var DangerousCommands = []string{
	"rm -rf",
	"rm -fr",
	"dd if=",
	"mkfs",
	"format",
	"shred",
	"> /dev/",
	":(){",
	"del /f",
	"fdisk",
	"diskpart",
}

// SystemPaths elevate risk one tier when touched by a file-like tool.
var SystemPaths = []string{
	"/etc/",
	"/sys/",
	"/proc/",
	"/boot/",
	"/dev/",
	"/sbin/",
	"/usr/lib/",
	"c:\\windows",
}

// PrivilegeKeywords are substrings indicating the invocation runs with or
// grants elevated privileges; any hit elevates risk one tier.
var PrivilegeKeywords = []string{
	"sudo",
	"doas ",
	"pkexec",
	"chmod 777",
	"chown root",
	"setcap",
	"runas",
	"su -",
}

// fileToolHints mark a tool name as file-like for the sensitive-path scan
// and the system-path risk check.
var fileToolHints = []string{
	"file",
	"read",
	"write",
	"edit",
	"dir",
	"path",
	"cat",
	"fs",
}

// IsFileTool reports whether a tool name suggests filesystem access.
func IsFileTool(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range fileToolHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// isDestructive reports whether matched text carries one of the markers
// that force Critical severity.
func isDestructive(matched string) bool {
	lower := strings.ToLower(matched)
	for _, marker := range destructiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// containsAny reports whether text contains any of the given substrings.
// Text must already be lowercased.
func containsAny(text string, substrings []string) (string, bool) {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return s, true
		}
	}
	return "", false
}
