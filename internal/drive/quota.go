package drive

import (
	"path"

	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/remotefs"
)

// usedBytes sums every file under root. Folders contribute nothing
// themselves. The walk is repeated on each call; nothing is cached, so
// mutations need no invalidation hooks.
func usedBytes(client remotefs.Client, root string) (int64, error) {
	entries, err := client.ReadDir(root)
	if err != nil {
		return 0, fault.Wrap(fault.CodeConnection, "failed to walk user tree", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.Dir {
			sub, err := usedBytes(client, path.Join(root, entry.Name))
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		total += entry.Size
	}
	return total, nil
}

// checkUpload reports whether incoming bytes fit inside the user's
// quota. It never errors the decision itself; a false return is the
// signal to refuse the batch before any bytes move.
func checkUpload(client remotefs.Client, root string, limitBytes, incoming int64) (bool, error) {
	used, err := usedBytes(client, root)
	if err != nil {
		return false, err
	}
	return used+incoming <= limitBytes, nil
}
