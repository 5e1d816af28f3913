package permissions

import "context"

// Validator checks permission sets submitted during role creation and
// update against the active catalog.
type Validator struct {
	holder *Holder
}

// NewValidator builds a Validator reading from holder.
func NewValidator(holder *Holder) *Validator {
	return &Validator{holder: holder}
}

// Validate verifies that every submitted kind exists in the catalog and
// that every include it declares is present in the same submission. The
// empty set is valid. Kinds are checked in submission order and the first
// violation is returned.
func (v *Validator) Validate(ctx context.Context, kinds []string) error {
	seen := make(map[string]struct{}, len(kinds))
	deduped := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		deduped = append(deduped, kind)
	}
	if len(deduped) == 0 {
		return nil
	}

	catalog := v.holder.Current()
	for _, kind := range deduped {
		if !catalog.Has(kind) {
			return &UnknownPermissionError{Kind: kind}
		}
		cfg, err := catalog.ByKind(kind)
		if err != nil {
			return err
		}
		var missing []string
		for _, include := range cfg.Includes {
			if _, ok := seen[include]; !ok {
				missing = append(missing, include)
			}
		}
		if len(missing) > 0 {
			return &MissingIncludesError{Kind: kind, Missing: missing}
		}
	}
	return nil
}
