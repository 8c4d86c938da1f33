package tasks

import (
	"context"
	"sort"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// DuplicateUser is one member of a [DuplicateGroup].
type DuplicateUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name"`
}

// DuplicateGroup lists user documents sharing an email address.
type DuplicateGroup struct {
	Email string          `json:"email"`
	Users []DuplicateUser `json:"users"`
}

// FindDuplicateUsers groups user documents by lowercased root email and returns the groups with
// more than one member. It writes nothing.
func (e *Engine) FindDuplicateUsers(ctx context.Context, opts TaskOptions) ([]DuplicateGroup, *TaskResult, error) {
	var groups []DuplicateGroup

	res, err := e.record("duplicate-users", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Users, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		byEmail := map[string][]DuplicateUser{}
		for _, doc := range docs {
			email := doc.String("email")
			if email == "" {
				res.Skipped++
				continue
			}
			key := shared.NormalizeKey(email)
			byEmail[key] = append(byEmail[key], DuplicateUser{
				ID:   doc.ID,
				Role: doc.String("role"),
				Name: shared.FirstNonEmpty(doc.String("profile.name"), doc.String("displayName")),
			})
		}

		for email, users := range byEmail {
			if len(users) < 2 {
				continue
			}
			groups = append(groups, DuplicateGroup{Email: email, Users: users})
			res.Changed += len(users)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i].Email < groups[j].Email })
		res.Counts = map[string]int{"groups": len(groups)}
		return nil
	})
	return groups, res, err
}
