package telegram

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
)

// TrainingReportTemplate is the template name of the training report
const TrainingReportTemplate = "training_report.tmpl"

const defaultTrainingReport = `{{define "training_report.tmpl"}}🧠 *Model trained*

Params: ` + "`{{.Params}}`" + `
Train accuracy: *{{printf "%.3f" .TrainAccuracy}}*
Test accuracy: *{{printf "%.3f" .TestAccuracy}}*
CV: {{printf "%.3f" .CVMean}} ± {{printf "%.3f" .CVStd}}
Rows: {{.TrainSize}} train / {{.TestSize}} test
{{range .Classes}}
{{.Label}}: precision {{printf "%.2f" .Precision}}, recall {{printf "%.2f" .Recall}}, f1 {{printf "%.2f" .F1}} ({{.Support}}){{end}}

Top features:{{range .Top}}
• {{.Feature}} {{printf "%.3f" .Importance}}{{end}}
{{end}}`

// TemplateManager renders notification templates
type TemplateManager struct {
	templates *template.Template
}

// NewTemplateManager loads templates from dir; an empty dir uses the built-in report
func NewTemplateManager(templatesDir string) (*TemplateManager, error) {
	templates, err := template.New("telegram").Parse(defaultTrainingReport)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in templates: %w", err)
	}

	if templatesDir != "" {
		pattern := filepath.Join(templatesDir, "*.tmpl")
		templates, err = templates.ParseGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to parse templates from %s: %w", templatesDir, err)
		}
		logger.Info("telegram templates loaded",
			zap.Int("count", len(templates.Templates())),
			zap.String("directory", templatesDir),
		)
	}

	if templates.Lookup(TrainingReportTemplate) == nil {
		return nil, fmt.Errorf("required template not found: %s", TrainingReportTemplate)
	}

	return &TemplateManager{templates: templates}, nil
}

// ExecuteTemplate renders template with data
func (tm *TemplateManager) ExecuteTemplate(name string, data interface{}) (string, error) {
	tmpl := tm.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
