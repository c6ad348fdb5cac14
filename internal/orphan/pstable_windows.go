//go:build windows

package orphan

// listProcesses is a Windows stub. The untracked pass finds nothing;
// the parent-dead and stale passes still run.
func listProcesses() ([]ProcessRow, error) {
	return nil, nil
}
