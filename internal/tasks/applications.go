package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

const (
	defaultSender      = "hello@repteam.com"
	defaultAdvisorName = "Rep Advisor"
)

// ResponseRequest is the input of [Engine.SendApplicationResponse].
type ResponseRequest struct {
	ApplicationID  string `json:"applicationId"`
	CandidateEmail string `json:"candidateEmail"`
	Subject        string `json:"subject"`
	HTMLBody       string `json:"htmlBody"`
	AdvisorName    string `json:"advisorName,omitempty"`
	AdvisorEmail   string `json:"advisorEmail,omitempty"`
}

func (r ResponseRequest) Validate() error {
	if r.ApplicationID == "" || r.CandidateEmail == "" || r.Subject == "" || r.HTMLBody == "" {
		return fmt.Errorf("%w: Missing required fields (applicationId, candidateEmail, subject, htmlBody).", shared.ErrInvalidArgument)
	}
	return nil
}

// ResponseResult reports a sent application response.
type ResponseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
	EmailID string `json:"emailId,omitempty"`
}

func (e *Engine) sender() string {
	return shared.FirstNonEmpty(e.config.Email.SenderEmail, defaultSender)
}

func (e *Engine) internalInbox() string {
	return shared.FirstNonEmpty(e.config.Email.InternalTo, e.sender())
}

// SendApplicationResponse emails an advisor's reply to a candidate and marks the application contacted.
//
// The advisor is copied on the email and receives replies. A failed status update after a
// successful send is reported as a warning, not an error.
func (e *Engine) SendApplicationResponse(ctx context.Context, caller *services.Caller, req ResponseRequest) (*ResponseResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.mailer == nil {
		return nil, unavailable("mailer")
	}

	var callerEmail string
	if caller != nil {
		callerEmail = caller.Email
	}
	advisorEmail := shared.FirstNonEmpty(req.AdvisorEmail, callerEmail, e.sender())
	advisorName := shared.FirstNonEmpty(req.AdvisorName, defaultAdvisorName)

	id, err := e.mailer.Send(ctx, services.Email{
		From:    fmt.Sprintf("%q <%s>", advisorName, e.sender()),
		To:      req.CandidateEmail,
		ReplyTo: advisorEmail,
		Bcc:     []string{advisorEmail},
		Subject: req.Subject,
		HTML:    req.HTMLBody,
	})
	if err != nil {
		e.logger.Error("application response not sent", "application", req.ApplicationID, "err", err)
		if !errors.Is(err, shared.ErrEmailSend) {
			err = fmt.Errorf("%w: %w", shared.ErrEmailSend, err)
		}
		return nil, err
	}

	err = e.store.Update(ctx, store.Applications, req.ApplicationID, map[string]any{
		"status":          "contacted",
		"lastContactedAt": store.ServerTimestamp,
	})
	if err != nil {
		e.logger.Warn("email sent but application not updated", "application", req.ApplicationID, "email", id, "err", err)
		return &ResponseResult{Success: true, Warning: "Email sent but status update failed.", EmailID: id}, nil
	}

	e.logger.Info("application response sent", "application", req.ApplicationID, "email", id)
	return &ResponseResult{Success: true, Message: "Email sent and application updated.", EmailID: id}, nil
}

// OnApplicationCreate assigns an advisor to a new application, notifies the team inbox and
// acknowledges the applicant. The application is updated only when both emails went out.
func (e *Engine) OnApplicationCreate(ctx context.Context, applicationID string, data map[string]any) (services.Advisor, error) {
	if e.mailer == nil {
		return services.Advisor{}, unavailable("mailer")
	}

	app := store.Doc{ID: applicationID, Data: data}
	fullName := app.String("fullName")
	logger := e.logger.With("application", applicationID)

	advisor := services.PickAdvisor(e.advisors)
	logger.Info("processing new application", "name", fullName, "advisor", advisor.Email)

	internalHTML, err := services.RenderInternalNotification(applicationSummary(app))
	if err != nil {
		return advisor, err
	}
	candidateHTML, err := services.RenderApplicantAutoResponse(shared.FirstNonEmpty(fullName, "Candidate"), advisor)
	if err != nil {
		return advisor, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.mailer.Send(gctx, services.Email{
			To:      e.internalInbox(),
			Subject: fmt.Sprintf("[New Lead] %s via Website", fullName),
			HTML:    internalHTML,
		})
		return err
	})
	g.Go(func() error {
		_, err := e.mailer.Send(gctx, services.Email{
			From:    fmt.Sprintf("%q <%s>", advisor.Name, e.sender()),
			To:      app.String("email"),
			ReplyTo: advisor.Email,
			Subject: "Re: Your application to Rep.",
			HTML:    candidateHTML,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("application emails failed", "err", err)
		return advisor, err
	}

	err = e.store.Update(ctx, store.Applications, applicationID, map[string]any{
		"status":            "new",
		"assignedAdvisorId": advisor.ID,
		"emailStats": map[string]any{
			"sentAt":          store.ServerTimestamp,
			"advisorAssigned": advisor.Email,
		},
	})
	if err != nil {
		logger.Error("failed to update application", "err", err)
		return advisor, fmt.Errorf("failed to update application %s: %w", applicationID, err)
	}

	logger.Info("application emails sent")
	return advisor, nil
}

func applicationSummary(app store.Doc) services.ApplicationSummary {
	return services.ApplicationSummary{
		FullName:          app.String("fullName"),
		Email:             app.String("email"),
		Phone:             app.String("phone"),
		LinkedinURL:       app.String("linkedinUrl"),
		CurrentSalary:     app.String("currentSalary"),
		TargetComp:        app.String("targetComp"),
		PrimaryMotivation: app.String("primaryMotivation"),
		Experience:        app.String("experience"),
	}
}

// Draft intents.
const (
	IntentConnect = "connect"
	IntentReject  = "reject"
	IntentClarify = "clarify"
)

// DraftRequest is the input of [Engine.GenerateApplicationDraft].
type DraftRequest struct {
	CandidateName    string `json:"candidateName"`
	Intent           string `json:"intent"`
	Role             string `json:"role,omitempty"`
	Company          string `json:"company,omitempty"`
	Motivation       string `json:"motivation,omitempty"`
	IdealTarget      string `json:"idealTarget,omitempty"`
	Experience       string `json:"experience,omitempty"`
	CurrentSalary    string `json:"currentSalary,omitempty"`
	TargetComp       string `json:"targetComp,omitempty"`
	PipelineVelocity string `json:"pipelineVelocity,omitempty"`
	EmploymentStatus string `json:"employmentStatus,omitempty"`
	AdvisorName      string `json:"advisorName,omitempty"`
}

func (r DraftRequest) Validate() error {
	if r.CandidateName == "" || r.Intent == "" {
		return fmt.Errorf("%w: Missing required fields (candidateName, intent).", shared.ErrInvalidArgument)
	}
	switch r.Intent {
	case IntentConnect, IntentReject, IntentClarify:
		return nil
	}
	return fmt.Errorf("%w: intent must be one of connect, reject, clarify", shared.ErrInvalidArgument)
}

// DraftResult carries a generated email body.
type DraftResult struct {
	Success bool   `json:"success"`
	Draft   string `json:"draft"`
}

// GenerateApplicationDraft writes an HTML email body in the advisor's voice for the given intent.
func (e *Engine) GenerateApplicationDraft(ctx context.Context, req DraftRequest) (*DraftResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.generator == nil {
		return nil, unavailable("generator")
	}

	req.Role = shared.FirstNonEmpty(req.Role, "Candidate")
	req.Company = shared.FirstNonEmpty(req.Company, "Unknown")
	advisor := shared.FirstNonEmpty(req.AdvisorName, defaultAdvisorName)

	text, err := e.generator.Generate(ctx, DraftPrompt(req, advisor), services.GenerateOptions{})
	if err != nil {
		e.logger.Error("draft generation failed", "intent", req.Intent, "err", err)
		return nil, err
	}
	return &DraftResult{Success: true, Draft: services.StripFences(text)}, nil
}

var intentGoals = map[string]string{
	IntentConnect: "[Connect]: Acknowledge their strong background. Propose a strictly brief intro chat. Assume a Calendly link will be added later.",
	IntentReject:  "[Reject]: Thank them, but state we don't have a match for their Ideal Target right now. Keep it professional and door-open for future.",
	IntentClarify: "[Clarify]: Express interest but ask specifically for their Resume or clarification on their Ideal Target. Be direct.",
}

const draftGuidelines = `
GUIDELINES:
1. Tone: Professional, high-status, slightly informal (peer-to-peer), and concise.
2. Structure:
   - Acknowledge where they are (Status/Motivation).
   - Pivot to Rep's value prop (ORDER MATTERS):
     1. FIRST: We bring you access to new, off-market PE/Hedge Fund roles.
     2. SECOND: We ALSO help you better navigate opportunities you are *already tracking*.
   - Call to Action (Intro call).
3. MISSING DATA RULES:
   - If 'Current Company' or 'Role' is NOT provided in context, DO NOT mention their current employment. Focus on their experience level or motivation.
   - NEVER use placeholders.
   - If 'Ideal Target' is generic, focus on "Finance Leadership" or "Investment Roles".
4. PERSONA RULES:
   - Do NOT introduce yourself by name in the body if signed with the same name.
   - Write as the specified Advisor (%s).
5. ANTI-ROBOTIC RULE:
   - Do NOT simply plug in the variables. Don't say "I see your motivation is X". Instead, synthesize it: "It sounds like you're looking for a move that offers X..."
   - Flow naturally.

CONSTRAINTS:
- Be concise (<150 words).
- No "I hope this finds you well".
- Do NOT include a sign-off or signature (e.g., skip "Best," and the name). We will append this programmatically.
- Output ONLY HTML paragraphs (<p>).
- Add strict spacing: Use <p style="margin-bottom: 16px;"> for every paragraph to ensure separation.
- Output ONLY the email body HTML.
`

// DraftPrompt builds the advisor-persona prompt for req.
func DraftPrompt(req DraftRequest, advisor string) string {
	var b strings.Builder
	b.WriteString("Act as a senior agent at Rep, an elite talent brokerage for high-finance professionals.\n")
	fmt.Fprintf(&b, "Write a short, personal email to %s on behalf of %s.\n\n", req.CandidateName, advisor)
	b.WriteString("CANDIDATE CONTEXT:\n")
	fmt.Fprintf(&b, "- Name: %s\n", req.CandidateName)
	fmt.Fprintf(&b, "- Motivation: %s\n", shared.FirstNonEmpty(req.Motivation, "Standard Application"))
	fmt.Fprintf(&b, "- Ideal Target: %s\n", shared.FirstNonEmpty(req.IdealTarget, "Not specified"))
	fmt.Fprintf(&b, "- Experience: %s\n", shared.FirstNonEmpty(req.Experience, "Not specified"))

	if req.Role != "" && req.Company != "" {
		fmt.Fprintf(&b, "- Current Role: %s at %s\n", req.Role, req.Company)
	}
	if req.CurrentSalary != "" || req.TargetComp != "" {
		fmt.Fprintf(&b, "- Compensation: %s -> %s\n", shared.FirstNonEmpty(req.CurrentSalary, "?"), shared.FirstNonEmpty(req.TargetComp, "?"))
	}
	if req.PipelineVelocity != "" {
		fmt.Fprintf(&b, "- Velocity: %s\n", req.PipelineVelocity)
	}
	if req.EmploymentStatus != "" {
		fmt.Fprintf(&b, "- Status: %s\n", req.EmploymentStatus)
	}

	fmt.Fprintf(&b, "\nYOUR GOAL (%s):\n%s\n", strings.ToUpper(req.Intent), intentGoals[req.Intent])
	fmt.Fprintf(&b, draftGuidelines, advisor)
	return b.String()
}
