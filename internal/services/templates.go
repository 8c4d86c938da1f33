package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math/rand/v2"
	"strings"
)

//go:embed templates/*.html
var templateFiles embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

// PortalURL is where the internal notification links to.
const PortalURL = "https://rep-portal.web.app/rep/applications"

// Advisor is a talent advisor applicants can be assigned to.
type Advisor struct {
	ID    string
	Name  string
	Email string // direct address used for Reply-To
	Title string
}

// Advisors is the rotation pool for new applications.
var Advisors = []Advisor{
	{ID: "patrick", Name: "Patrick Deniger", Email: "patrick@repteam.com", Title: "Head of Talent"},
}

// PickAdvisor returns a random advisor from pool, or from [Advisors] when pool is empty.
func PickAdvisor(pool []Advisor) Advisor {
	if len(pool) == 0 {
		pool = Advisors
	}
	return pool[rand.IntN(len(pool))]
}

// ApplicationSummary is the applicant data shown in the internal notification.
type ApplicationSummary struct {
	FullName          string
	Email             string
	Phone             string
	LinkedinURL       string
	CurrentSalary     string
	TargetComp        string
	PrimaryMotivation string
	Experience        string
	PortalURL         string
}

// RenderInternalNotification renders the new-lead email sent to the team inbox.
func RenderInternalNotification(app ApplicationSummary) (string, error) {
	if app.PortalURL == "" {
		app.PortalURL = PortalURL
	}
	return render("internal_notification.html", app)
}

// RenderApplicantAutoResponse renders the acknowledgement sent to the applicant from their advisor.
func RenderApplicantAutoResponse(candidateName string, advisor Advisor) (string, error) {
	firstName, _, _ := strings.Cut(strings.TrimSpace(candidateName), " ")
	if firstName == "" {
		firstName = "Candidate"
	}
	return render("applicant_auto_response.html", struct {
		FirstName string
		Advisor   Advisor
	}{firstName, advisor})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
