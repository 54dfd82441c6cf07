package cleanup

import "context"

// DryRun wraps store so that every delete reports one affected row without
// touching the table. Reads go to store unchanged.
func DryRun(store Store) Store {
	return dryRunStore{Store: store}
}

type dryRunStore struct {
	Store
}

func (dryRunStore) Delete(context.Context, string) (int64, error) {
	return 1, nil
}
