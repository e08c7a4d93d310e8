// Package notice renders enforcement notices for verified detections. A
// deterministic template always works; when an Anthropic key is configured
// the drafter asks the model for a fuller legal draft and falls back to the
// template on any failure.
package notice

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/audit-cli/internal/model"
	"github.com/terralens/audit-cli/pkg/anthropic"
)

const defaultModel = "claude-sonnet-4-5-20250929"

const systemPrompt = "You draft formal show-cause notices for environmental " +
	"enforcement in India. Use the facts supplied verbatim, cite only the law " +
	"and section given, and keep the notice under 400 words. Plain text only."

var noticeTemplate = template.Must(template.New("notice").Parse(`SHOW-CAUSE NOTICE

Date: {{.Date}}
Reference: {{.Detection.ID}}

Whereas satellite surveillance conducted on {{.Date}} has recorded
unauthorized development activity at coordinates {{printf "%.6f" .Detection.Lat}}, {{printf "%.6f" .Detection.Lng}}
within {{.Detection.Verdict.Zone}};

And whereas the said activity contravenes {{.Detection.Verdict.Law}}{{if ne .Detection.Verdict.Article "N/A"}}, {{.Detection.Verdict.Article}}{{end}} ({{.Detection.Verdict.Section}});

The occupier is hereby directed to show cause within fifteen (15) days why
action by way of {{.Detection.Verdict.PenaltyType}} should not be taken, failing
which the matter shall be placed before the {{.Detection.Verdict.Jurisdiction}}.

Evidence hash: {{.Detection.Evidence.Hash}}{{if .Detection.TxHash}}
Ledger transaction: {{.Detection.TxHash}}{{end}}

By order,
Enforcement Cell
`))

// Drafter produces notice text for a detection.
type Drafter struct {
	client anthropic.Client // nil means template only
	model  string
	now    func() time.Time
}

// NewDrafter builds a Drafter. client may be nil, in which case every draft
// uses the built-in template.
func NewDrafter(client anthropic.Client, modelID string) *Drafter {
	if modelID == "" {
		modelID = defaultModel
	}
	return &Drafter{client: client, model: modelID, now: time.Now}
}

// Draft returns notice text for a verified detection. Non-violations are
// rejected; nothing should ever be served over an INFO verdict.
func (d *Drafter) Draft(ctx context.Context, det model.Detection) (string, error) {
	if !det.Verdict.IsViolation {
		return "", eris.New("notice: detection carries no violation")
	}

	rendered, err := d.renderTemplate(det)
	if err != nil {
		return "", err
	}
	if d.client == nil {
		return rendered, nil
	}

	text, err := d.draftWithModel(ctx, det, rendered)
	if err != nil {
		zap.L().Warn("model draft failed, serving template notice",
			zap.String("detection_id", det.ID),
			zap.Error(err),
		)
		return rendered, nil
	}
	return text, nil
}

func (d *Drafter) renderTemplate(det model.Detection) (string, error) {
	var b strings.Builder
	data := struct {
		Date      string
		Detection model.Detection
	}{
		Date:      d.now().Format("02 January 2006"),
		Detection: det,
	}
	if err := noticeTemplate.Execute(&b, data); err != nil {
		return "", eris.Wrap(err, "notice: render template")
	}
	return b.String(), nil
}

func (d *Drafter) draftWithModel(ctx context.Context, det model.Detection, draft string) (string, error) {
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.model,
		MaxTokens: 1024,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Rewrite the following notice in full legal register, preserving every fact, reference and hash exactly:\n\n" + draft},
		},
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("notice: model returned empty draft")
	}
	resp.Usage.LogUsage(d.model, "notice_draft")
	return text, nil
}
