package modelstore

import (
	"context"
	"sort"

	"nlud/pkg/types"
)

// Prune deletes the models of lang beyond the keep most recently finished
// ones. The model named by except is never deleted. It returns the deleted ids.
func Prune(ctx context.Context, s Store, lang string, keep int, except string) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	ids, err := s.ListModels(ctx, types.ModelID(lang, ""))
	if err != nil {
		return nil, err
	}
	type dated struct {
		id string
		m  *types.Model
	}
	var all []dated
	for _, id := range ids {
		if id == except {
			continue
		}
		m, err := s.GetModel(ctx, id)
		if IsModelNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, dated{id: id, m: m})
	}
	// except counts toward keep when present
	slots := keep
	if except != "" {
		slots--
	}
	if len(all) <= slots {
		return nil, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].m.FinishedAt.After(all[j].m.FinishedAt) })
	var deleted []string
	for _, d := range all[slots:] {
		if err := s.DeleteModel(ctx, d.id); err != nil {
			return deleted, err
		}
		deleted = append(deleted, d.id)
	}
	return deleted, nil
}
