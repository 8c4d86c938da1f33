package tasks

import (
	"context"
	"fmt"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// OnIntakeCreated hydrates an engagement from a new intake response.
//
// It returns the new engagement id, or "" when the intake has no user or the user already
// has an engagement.
func (e *Engine) OnIntakeCreated(ctx context.Context, intakeID string, data map[string]any) (string, error) {
	intake := store.Doc{ID: intakeID, Data: data}
	logger := e.logger.With("intake", intakeID)

	userID := intake.String("userId")
	if userID == "" {
		logger.Info("no userId on intake, skipping hydration")
		return "", nil
	}

	existing, err := e.store.Find(ctx, store.Query{
		Collection: store.Engagements,
		Where:      []store.Filter{store.Eq("userId", userID)},
		Limit:      1,
	})
	if err != nil {
		logger.Error("failed to check engagements", "user", userID, "err", err)
		return "", fmt.Errorf("failed to check engagements for %s: %w", userID, err)
	}
	if len(existing) > 0 {
		logger.Info("engagement already exists, skipping", "user", userID, "engagement", existing[0].ID)
		return "", nil
	}

	id, err := e.store.Add(ctx, store.Engagements, EngagementFromIntake(intake))
	if err != nil {
		logger.Error("failed to create engagement", "user", userID, "err", err)
		return "", fmt.Errorf("failed to create engagement for %s: %w", userID, err)
	}

	logger.Info("created engagement from intake", "user", userID, "engagement", id)
	return id, nil
}

// EngagementFromIntake maps an intake response onto a new engagement document.
func EngagementFromIntake(intake store.Doc) map[string]any {
	get := intake.Get
	hard := func(key string) any { return get("filters.hardConstraints." + key) }
	soft := func(key string) any { return get("filters.softPreferences." + key) }

	return map[string]any{
		"userId":    intake.String("userId"),
		"status":    "active",
		"createdAt": store.ServerTimestamp,
		"updatedAt": store.ServerTimestamp,
		"profile": map[string]any{
			"firstName":      get("profile.firstName"),
			"lastName":       get("profile.lastName"),
			"headline":       shared.FirstNonEmpty(intake.String("profile.headline"), intake.String("profile.currentTitle")),
			"pod":            shared.FirstNonEmpty(intake.String("profile.industry"), "General"),
			"currentTitle":   get("profile.currentTitle"),
			"currentCompany": get("profile.currentCompany"),
			"industry":       get("profile.industry"),
			"experienceBand": get("profile.experienceBand"),
			"marketIdentity": get("marketIdentity"),
		},
		"strategy": map[string]any{
			"trajectory": get("trajectory"),
			"horizon":    get("horizon"),
			"ownership":  get("ownership"),
			"authority":  get("authority"),
			"comp":       get("comp"),
		},
		"targetParameters": map[string]any{
			"minBase":               hard("minBase"),
			"minTotalComp":          hard("minTotalComp"),
			"minLevel":              hard("minLevel"),
			"maxCommuteMinutes":     hard("maxCommuteMinutes"),
			"relocationWillingness": hard("relocationWillingness"),
			"preferredIndustries":   soft("preferredIndustries"),
			"avoidIndustries":       soft("avoidIndustries"),
			"preferredFunctions":    soft("preferredFunctions"),
			"workStyle":             soft("workStyle"),
		},
	}
}
