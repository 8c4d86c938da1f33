package tasks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
)

const (
	platinumThreshold = 200
	jdPromptLimit     = 3000
	resumePromptLimit = 5000
	atsMaxTokens      = 8192
)

var (
	compliantDate = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	badDates      = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{2,4}\b`),
		regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2,4}\b`),
	}
)

// Layer keys of an ATS scorecard.
const (
	LayerShadowSchema    = "shadow_schema"
	LayerMatrixFiltering = "matrix_filtering"
	LayerVersionControl  = "version_control"
	LayerContentContext  = "content_context"
	LayerCompliance      = "compliance_gating"
)

var layerDescriptions = map[string]string{
	LayerShadowSchema:    "Private Field Gap Analysis",
	LayerMatrixFiltering: "Location/Dept Signal Lock",
	LayerVersionControl:  "Stagnant Signal Risk",
	LayerContentContext:  "Full Content Context Audit",
	LayerCompliance:      "Syntax Firewall Check (Strict MM/dd/yyyy)",
}

var layerWeights = map[string]float64{
	LayerShadowSchema:    0.3,
	LayerMatrixFiltering: 0.2,
	LayerVersionControl:  0.1,
	LayerContentContext:  0.1,
	LayerCompliance:      0.3,
}

// AtsInput is the input of [Engine.SimulateATS]. ResumeBuffer holds base64 PDF bytes.
type AtsInput struct {
	TargetRoleRaw string `json:"targetRoleRaw"`
	TargetComp    string `json:"targetComp,omitempty"`
	ResumeText    string `json:"resumeText,omitempty"`
	ResumeBuffer  string `json:"resumeBuffer,omitempty"`
	ResumeURL     string `json:"resumeUrl,omitempty"`
	UserID        string `json:"userId,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
	JobPursuitID  string `json:"jobPursuitId,omitempty"`
}

func (in AtsInput) Validate() error {
	if in.TargetRoleRaw == "" || (in.ResumeText == "" && in.ResumeBuffer == "" && in.ResumeURL == "") {
		return fmt.Errorf("%w: Missing job description or resume content (URL, text, or buffer required).", shared.ErrInvalidArgument)
	}
	return nil
}

// AtsLayer is one scored layer of the scorecard.
type AtsLayer struct {
	Score       float64  `json:"score"`
	Flags       []string `json:"flags"`
	Description string   `json:"description"`
}

// ParserView is what an applicant tracking system extracted from the resume.
type ParserView struct {
	ExtractedName          *string  `json:"extractedName"`
	ExtractedEmail         *string  `json:"extractedEmail"`
	ExtractedPhone         *string  `json:"extractedPhone"`
	ExtractedSkills        []string `json:"extractedSkills"`
	RawTextDump            string   `json:"rawTextDump"`
	ParsingConfidenceScore int      `json:"parsingConfidenceScore"`
}

// Scorecard aggregates the layers.
type Scorecard struct {
	OverallScore     int                 `json:"overallScore"`
	Layers           map[string]AtsLayer `json:"layers"`
	CriticalFailures []string            `json:"criticalFailures"`
}

// AtsSimulation is the result of one ATS run.
type AtsSimulation struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId,omitempty"`
	ApplicationID string     `json:"applicationId,omitempty"`
	JobPursuitID  string     `json:"jobPursuitId,omitempty"`
	TargetRoleRaw string     `json:"targetRoleRaw"`
	SyntheticJD   bool       `json:"syntheticJd"`
	ResumeTextRaw string     `json:"resumeTextRaw"`
	ParserView    ParserView `json:"parserView"`
	Scorecard     Scorecard  `json:"scorecard"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SimulateATS audits a resume against a role the way an enterprise applicant tracking system would.
//
// Short role titles are first expanded into a synthetic job description. Layers the model
// fails to score fall back to zero, the compliance layer is always computed locally.
func (e *Engine) SimulateATS(ctx context.Context, in AtsInput) (*AtsSimulation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if e.generator == nil {
		return nil, unavailable("generator")
	}

	jd, synthetic := in.TargetRoleRaw, false
	if len(in.TargetRoleRaw) < platinumThreshold {
		e.logger.Info("generating platinum job description", "title", in.TargetRoleRaw)
		jd, synthetic = e.platinumJD(ctx, in.TargetRoleRaw, in.TargetComp), true
	}

	text := e.resumeText(ctx, in)
	compliance := complianceLayer(text)
	analysis := e.analyse(ctx, jd, synthetic, text)

	layers := map[string]AtsLayer{LayerCompliance: compliance}
	for _, key := range []string{LayerShadowSchema, LayerMatrixFiltering, LayerVersionControl, LayerContentContext} {
		layers[key] = analysis.layer(key)
	}

	var overall float64
	for key, w := range layerWeights {
		overall += layers[key].Score * w
	}

	entities := analysis.Entities
	if entities == nil {
		entities = &atsEntities{}
	}
	skills := entities.Skills
	if skills == nil {
		skills = []string{}
	}

	return &AtsSimulation{
		ID:            shared.GenerateID(),
		UserID:        in.UserID,
		ApplicationID: in.ApplicationID,
		JobPursuitID:  in.JobPursuitID,
		TargetRoleRaw: in.TargetRoleRaw,
		SyntheticJD:   synthetic,
		ResumeTextRaw: text,
		ParserView: ParserView{
			ExtractedName:          entities.Name,
			ExtractedEmail:         entities.Email,
			ExtractedPhone:         entities.Phone,
			ExtractedSkills:        skills,
			RawTextDump:            text,
			ParsingConfidenceScore: entities.confidence(),
		},
		Scorecard: Scorecard{
			OverallScore:     int(math.Round(overall)),
			Layers:           layers,
			CriticalFailures: append([]string{}, compliance.Flags...),
		},
		CreatedAt: e.now(),
	}, nil
}

func (e *Engine) platinumJD(ctx context.Context, title, targetComp string) string {
	compContext := "TARGET LEVEL: Top 1% of Market"
	if targetComp != "" {
		compContext = "TARGET COMPENSATION: " + targetComp
	}

	prompt := fmt.Sprintf(`You are an Expert Headhunter for Fortune 500 companies.
Create a "Platinum Standard" Job Description for the following role title.

ROLE TITLE: %q
%s

INSTRUCTIONS:
1. Write a ruthless, high-performance Job Description that justifies the target compensation.
2. Focus on STRATEGIC IMPACT, P&L OWNERSHIP, and LEADERSHIP PHILOSOPHY.
3. Include hard-to-fake requirements (e.g., "Scaled revenue from X to Y", "Managed teams of 50+").
4. Avoid generic "responsibilities" - use "Key Challenges" and "Performance Outcomes".
5. The goal is to set a "High Bar" to audit an aspiring candidate against.

OUTPUT:
Full Job Description Text Only.
`, title, compContext)

	text, err := e.generator.Generate(ctx, prompt, services.GenerateOptions{MaxOutputTokens: atsMaxTokens})
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("platinum job description failed, using title", "err", err)
		return title
	}
	return text
}

// resumeText resolves the resume to plain text. Failures become text the layers will score low.
func (e *Engine) resumeText(ctx context.Context, in AtsInput) string {
	text := in.ResumeText

	var data []byte
	switch {
	case in.ResumeBuffer != "":
		b, err := base64.StdEncoding.DecodeString(in.ResumeBuffer)
		if err != nil {
			return "CRITICAL FAILURE: Could not parse PDF structure.\nError: " + err.Error()
		}
		data = b
	case text == "" && in.ResumeURL != "":
		b, err := services.FetchDocument(ctx, e.httpClient, in.ResumeURL)
		if err != nil {
			e.logger.Error("resume download failed", "err", err)
			text = fmt.Sprintf("CRITICAL FAILURE: Could not download/verify resume from URL.\nError: %s\nURL: %s", err, in.ResumeURL)
		}
		data = b
	}

	if data != nil {
		parsed, err := services.ExtractPDFText(data)
		if err != nil {
			e.logger.Error("resume parse failed", "err", err)
			parsed = "CRITICAL FAILURE: Could not parse PDF structure.\nError: " + err.Error()
		}
		text = parsed
	}

	if strings.TrimSpace(text) == "" {
		e.logger.Warn("resume produced no text")
		text = "[FORENSIC ALERT] NO PARSABLE TEXT FOUND.\n\nPossible Causes:\n1. Scanned Image-only PDF.\n2. Security restrictions.\n3. Non-standard font encoding.\n\nATS Result: REJECT (Blank Applicant)"
	}
	return text
}

// complianceLayer scores date formatting: no MM/dd/yyyy date at all is fatal, each other
// date style found costs 20 points.
func complianceLayer(text string) AtsLayer {
	layer := AtsLayer{Score: 100, Flags: []string{}, Description: layerDescriptions[LayerCompliance]}

	if !compliantDate.MatchString(text) {
		layer.Flags = append(layer.Flags, "CRITICAL: No standard MM/dd/yyyy dates found.")
		layer.Score = 0
	}

	bad := 0
	for _, p := range badDates {
		if p.MatchString(text) {
			bad++
		}
	}
	if bad > 0 {
		layer.Flags = append(layer.Flags, fmt.Sprintf("Found %d non-compliant date formats.", bad))
		layer.Score -= float64(bad * 20)
	}

	layer.Score = math.Max(layer.Score, 0)
	return layer
}

type atsLayerJSON struct {
	Score       *float64 `json:"score"`
	Flags       []string `json:"flags"`
	Description string   `json:"description"`
}

type atsEntities struct {
	Name   *string  `json:"name"`
	Email  *string  `json:"email"`
	Phone  *string  `json:"phone"`
	Skills []string `json:"skills"`
}

// confidence is computed from the fields present rather than trusted from the model.
func (a *atsEntities) confidence() int {
	score := 0
	if a.Name != nil && *a.Name != "" {
		score += 30
	}
	if a.Email != nil && *a.Email != "" {
		score += 30
	}
	if a.Phone != nil && *a.Phone != "" {
		score += 20
	}
	if len(a.Skills) > 0 {
		score += 20
	}
	return score
}

type atsAnalysis struct {
	Layers   map[string]*atsLayerJSON
	Entities *atsEntities
}

func (a *atsAnalysis) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Layers = map[string]*atsLayerJSON{}
	for key, msg := range raw {
		if key == "extracted_entities" {
			var ent atsEntities
			if json.Unmarshal(msg, &ent) == nil {
				a.Entities = &ent
			}
			continue
		}
		var l atsLayerJSON
		if json.Unmarshal(msg, &l) == nil {
			a.Layers[key] = &l
		}
	}
	return nil
}

func (a *atsAnalysis) layer(key string) AtsLayer {
	l, ok := a.Layers[key]
	if !ok || l == nil || l.Score == nil {
		return AtsLayer{Score: 0, Flags: []string{"AI Analysis Failed"}, Description: layerDescriptions[key]}
	}
	flags := l.Flags
	if flags == nil {
		flags = []string{}
	}
	return AtsLayer{Score: *l.Score, Flags: flags, Description: shared.FirstNonEmpty(l.Description, layerDescriptions[key])}
}

// analyse asks each ATS model in turn for the JSON audit and keeps the first answer that decodes.
func (e *Engine) analyse(ctx context.Context, jd string, synthetic bool, resume string) *atsAnalysis {
	label := ""
	if synthetic {
		label = " (SYNTHETIC PLATINUM STANDARD)"
	}
	prompt := fmt.Sprintf(atsPrompt, label, truncate(jd, jdPromptLimit), truncate(resume, resumePromptLimit))

	models := e.config.AI.ATSModels
	if len(models) == 0 {
		models = services.DefaultATSModels
	}

	for _, model := range models {
		if ctx.Err() != nil {
			break
		}
		text, err := e.generator.Generate(ctx, prompt, services.GenerateOptions{
			Models:          []string{model},
			JSON:            true,
			MaxOutputTokens: atsMaxTokens,
		})
		if err != nil {
			e.logger.Warn("ats analysis failed", "model", model, "err", err)
			if services.IsInvalidKey(err) {
				break
			}
			continue
		}

		var result atsAnalysis
		if err := json.Unmarshal([]byte(services.StripFences(text)), &result); err != nil {
			e.logger.Warn("ats analysis returned invalid json", "model", model, "err", err)
			continue
		}
		return &result
	}

	e.logger.Error("ats analysis failed on every model")
	return &atsAnalysis{Layers: map[string]*atsLayerJSON{}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const atsPrompt = `You are an Enterprise ATS Simulator. Audit this candidate.

JOB DESCRIPTION%s:
%s

RESUME TEXT:
%s

PERFORM AUDIT LAYERS:
1. Shadow Schema (Hidden Deal-breakers): Salary, Relocation, Visa. Score 0-100.
2. Matrix Filtering (Role/Location Lock): Does resume confirm explicit location match? Score 0-100.
3. Signal Freshness: Generic vs Targeted? Score 0-100.
4. Context Audit: Cultural keywords? Score 0-100.
5. Entity Extraction (The Parser View):
    - Extract what you think are the: Name, Email, Phone, Top 5 Hard Skills.

OUTPUT RAW JSON ONLY (No Markdown):
{
    "shadow_schema": { "score": number, "flags": string[] },
    "matrix_filtering": { "score": number, "flags": string[] },
    "version_control": { "score": number, "flags": string[] },
    "content_context": { "score": number, "flags": string[] },
    "extracted_entities": {
        "name": string | null,
        "email": string | null,
        "phone": string | null,
        "skills": string[]
    },
    "confidence_score": number
}
`
