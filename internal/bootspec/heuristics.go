package bootspec

import "github.com/sigreer/bootgod/internal/catalog"

// probeResult is everything the rule table is allowed to see about a
// source. Keeping it a plain value keeps the heuristics testable in
// isolation from any device or process I/O.
type probeResult struct {
	FS        catalog.FSKind
	Bootable  bool
	Container ContainerKind
	HasGPT    bool
	HasESP    bool
	SizeBytes uint64
}

// Rule maps a detected source shape to resource defaults. Rules are
// evaluated in order; the first match wins. The table is data, not
// logic: its content is expected to evolve independently of the
// resolver and can be replaced wholesale by callers.
type Rule struct {
	Name      string
	Match     func(p probeResult) bool
	Firmware  Firmware
	Interface DiskInterface
	MemoryMB  int
	CPUs      int
}

// DefaultRules is the stock signature-to-defaults table.
var DefaultRules = []Rule{
	{
		// NTFS with a boot signature is a Windows installation;
		// modern Windows wants UEFI and takes more memory to be usable
		Name:      "windows-ntfs",
		Match:     func(p probeResult) bool { return p.FS == catalog.FSNTFS && p.Bootable },
		Firmware:  FirmwareUEFI,
		Interface: InterfaceVirtio,
		MemoryMB:  4096,
		CPUs:      4,
	},
	{
		Name:      "live-iso",
		Match:     func(p probeResult) bool { return p.Container == ContainerISO },
		Firmware:  FirmwareBIOS,
		Interface: InterfaceIDE,
		MemoryMB:  2048,
		CPUs:      2,
	},
	{
		Name:      "linux-ext",
		Match:     func(p probeResult) bool { return p.FS == catalog.FSExt4 },
		Firmware:  FirmwareBIOS,
		Interface: InterfaceVirtio,
		MemoryMB:  2048,
		CPUs:      2,
	},
	{
		// GPT disk with an EFI system partition
		Name:      "uefi-gpt",
		Match:     func(p probeResult) bool { return p.HasGPT || p.HasESP },
		Firmware:  FirmwareUEFI,
		Interface: InterfaceVirtio,
		MemoryMB:  2048,
		CPUs:      2,
	},
	{
		Name:      "guest-image",
		Match:     func(p probeResult) bool { return p.Container != ContainerRaw && p.Container != ContainerISO },
		Firmware:  FirmwareBIOS,
		Interface: InterfaceVirtio,
		MemoryMB:  2048,
		CPUs:      2,
	},
}

// fallbackProfile is the conservative default when no rule matches:
// BIOS and IDE boot nearly everything, slowly.
var fallbackProfile = BootProfile{
	Firmware:  FirmwareBIOS,
	Interface: InterfaceIDE,
	MemoryMB:  1024,
	CPUs:      2,
}

// applyRules walks the table and builds the profile for the first
// matching rule.
func applyRules(rules []Rule, p probeResult) *BootProfile {
	for _, rule := range rules {
		if rule.Match(p) {
			return &BootProfile{
				Firmware:  rule.Firmware,
				Interface: rule.Interface,
				MemoryMB:  rule.MemoryMB,
				CPUs:      rule.CPUs,
				Extra:     map[string]string{"matched-rule": rule.Name},
			}
		}
	}
	out := fallbackProfile
	return &out
}
