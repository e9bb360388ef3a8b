package catalog

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// loadMounts reads the process mount table. A failure here is
// best-effort: the caller downgrades mount state to unknown.
func loadMounts(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(f)
}

// parseMounts maps device path -> mountpoint. Mountpoints in
// /proc/self/mounts escape spaces and tabs as octal sequences.
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		dev := fields[0]
		if _, ok := mounts[dev]; ok {
			// First mount wins; later bind mounts are not the
			// partition's primary mountpoint
			continue
		}
		mounts[dev] = unescapeMount(fields[1])
	}

	return mounts, scanner.Err()
}

func unescapeMount(s string) string {
	replacer := strings.NewReplacer(
		`\040`, " ",
		`\011`, "\t",
		`\012`, "\n",
		`\134`, `\`,
	)
	return replacer.Replace(s)
}
