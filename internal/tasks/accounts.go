package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

const tempPasswordLength = 16

// Number decodes a JSON number, a numeric string or null. Anything unparsable is 0.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*n = Number(t)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		*n = Number(f)
	default:
		*n = 0
	}
	return nil
}

// ProvisionRequest is the input of [Engine.ProvisionClient].
type ProvisionRequest struct {
	Email           string         `json:"email"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Phone           string         `json:"phone,omitempty"`
	Address         map[string]any `json:"address,omitempty"`
	Pod             string         `json:"pod"`
	StartDate       string         `json:"startDate"`
	MonthlyRetainer Number         `json:"monthlyRetainer"`
	ISAPercentage   Number         `json:"isaPercentage"`
}

// Validate checks the required fields.
func (r ProvisionRequest) Validate() error {
	if r.Email == "" || r.FirstName == "" || r.LastName == "" || r.Pod == "" || r.StartDate == "" {
		return fmt.Errorf("%w: Missing required fields.", shared.ErrInvalidArgument)
	}
	return nil
}

// ProvisionResult is returned to the rep who provisioned the client.
type ProvisionResult struct {
	Success      bool   `json:"success"`
	ClientID     string `json:"clientId"`
	UserID       string `json:"userId"`
	TempPassword string `json:"tempPassword"`
}

// ProvisionClient creates the auth account for a new client together with its user, contact and
// engagement documents. repID is the uid of the calling rep.
//
// The three documents are written in one batch. An auth account created before a failed batch
// is left in place and logged for manual cleanup.
func (e *Engine) ProvisionClient(ctx context.Context, repID string, req ProvisionRequest) (*ProvisionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.identity == nil {
		return nil, unavailable("identity")
	}

	password, err := shared.TempPassword(tempPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	name := req.FirstName + " " + req.LastName
	uid, err := e.identity.CreateUser(ctx, services.NewAuthUser{
		Email:       req.Email,
		Password:    password,
		DisplayName: name,
	})
	if err != nil {
		return nil, err
	}

	contactID := e.store.NewID(store.Contacts)
	engagementID := e.store.NewID(store.Engagements)
	headline := "Client in " + req.Pod

	var phone, address any
	if req.Phone != "" {
		phone = req.Phone
	}
	if len(req.Address) > 0 {
		address = req.Address
	}

	batch := e.store.Batch()
	batch.Set(store.Users, uid, map[string]any{
		"uid":                    uid,
		"email":                  req.Email,
		"role":                   "client",
		"requiresPasswordChange": true,
		"createdAt":              store.ServerTimestamp,
		"profile": map[string]any{
			"firstName": req.FirstName,
			"lastName":  req.LastName,
			"name":      name,
			"status":    "searching",
			"pod":       req.Pod,
			"headline":  headline,
			"bio_long":  "",
			"bio_short": "",
			"pitch":     "",
			"repId":     repID,
			"contactId": contactID,
		},
	}, false)
	batch.Set(store.Contacts, contactID, map[string]any{
		"id":           contactID,
		"firstName":    req.FirstName,
		"lastName":     req.LastName,
		"email":        req.Email,
		"phone":        phone,
		"address":      address,
		"type":         "client",
		"createdAt":    store.ServerTimestamp,
		"engagementId": engagementID,
	}, false)
	batch.Set(store.Engagements, engagementID, map[string]any{
		"id":              engagementID,
		"userId":          uid,
		"repId":           repID,
		"status":          "active",
		"startDate":       req.StartDate,
		"monthlyRetainer": float64(req.MonthlyRetainer),
		"isaPercentage":   float64(req.ISAPercentage),
		"profile": map[string]any{
			"firstName": req.FirstName,
			"lastName":  req.LastName,
			"headline":  headline,
			"pod":       req.Pod,
			"contactId": contactID,
		},
		"strategy":         map[string]any{},
		"targetParameters": map[string]any{},
		"createdAt":        store.ServerTimestamp,
	}, false)

	if err := batch.Commit(ctx); err != nil {
		e.logger.Error("client profile write failed, auth user left in place", "uid", uid, "email", req.Email, "err", err)
		return nil, fmt.Errorf("failed to write client documents: %w", err)
	}

	e.logger.Info("provisioned client", "email", req.Email, "uid", uid, "engagement", engagementID, "rep", repID)
	return &ProvisionResult{Success: true, ClientID: engagementID, UserID: uid, TempPassword: password}, nil
}

// RepairRequest is the input of [Engine.RepairAccount].
type RepairRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Pod         string `json:"pod,omitempty"`
	Headline    string `json:"headline,omitempty"`
}

// RepairResult describes what [Engine.RepairAccount] did.
type RepairResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	UID          string `json:"uid"`
	TempPassword string `json:"tempPassword"`
}

// RepairAccount restores sign-in for a client account.
//
// An existing auth user gets a new password and is re-enabled. Otherwise the auth user is
// recreated under the uid of the matching users document, so the profile stays linked.
func (e *Engine) RepairAccount(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrInvalidArgument)
	}
	if e.identity == nil {
		return nil, unavailable("identity")
	}

	password := req.Password
	if password == "" {
		var err error
		if password, err = shared.TempPassword(tempPasswordLength); err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
	}

	user, err := e.identity.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if err := e.identity.ResetPassword(ctx, user.UID, password); err != nil {
			return nil, err
		}
		e.logger.Info("reset password for existing user", "uid", user.UID)
		return &RepairResult{
			Success:      true,
			Message:      "Reset password for EXISTING user " + user.UID,
			UID:          user.UID,
			TempPassword: password,
		}, nil
	case !errors.Is(err, shared.ErrUserNotFound):
		return nil, err
	}

	uid, err := e.findUserID(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	first, last := req.FirstName, req.LastName
	displayName := shared.FirstNonEmpty(req.DisplayName, strings.TrimSpace(first+" "+last), req.Email)
	if first == "" && last == "" {
		first, last, _ = strings.Cut(displayName, " ")
	}

	if _, err := e.identity.CreateUser(ctx, services.NewAuthUser{
		UID:           uid,
		Email:         req.Email,
		Password:      password,
		DisplayName:   displayName,
		EmailVerified: true,
	}); err != nil {
		return nil, err
	}

	err = e.store.Set(ctx, store.Users, uid, map[string]any{
		"uid":                    uid,
		"email":                  req.Email,
		"role":                   "client",
		"requiresPasswordChange": false,
		"profile": map[string]any{
			"firstName": first,
			"lastName":  last,
			"name":      displayName,
			"email":     req.Email,
			"status":    "searching",
			"pod":       shared.FirstNonEmpty(req.Pod, "General"),
			"headline":  shared.FirstNonEmpty(req.Headline, "Client"),
		},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to restore profile for %s: %w", uid, err)
	}

	e.logger.Info("recreated auth user", "email", req.Email, "uid", uid)
	return &RepairResult{
		Success:      true,
		Message:      fmt.Sprintf("RECREATED user %s with UID %s", req.Email, uid),
		UID:          uid,
		TempPassword: password,
	}, nil
}

// findUserID returns the id of the users document for email, matching profile.email before
// the root email, or a new time-based id when there is none.
func (e *Engine) findUserID(ctx context.Context, email string) (string, error) {
	for _, path := range []string{"profile.email", "email"} {
		docs, err := e.store.Find(ctx, store.Query{
			Collection: store.Users,
			Where:      []store.Filter{store.Eq(path, email)},
			Limit:      1,
		})
		if err != nil {
			return "", fmt.Errorf("failed to look up user by %s: %w", path, err)
		}
		if len(docs) > 0 {
			return docs[0].ID, nil
		}
	}
	return fmt.Sprintf("user_%d", e.now().UnixMilli()), nil
}
