package visualization

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser opens target, a URL or an HTML file path, in the default
// browser without waiting for it to exit.
func OpenBrowser(target string) error {
	name, args, err := browserCommand(runtime.GOOS, target)
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// browserCommand picks the opener for goos. On Windows, rundll32 is used
// instead of `cmd /c start` so '&' in query strings is not read as a
// command separator.
func browserCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("opening a browser is not supported on %s", goos)
	}
}
