package mail

import (
	"bytes"
	"html/template"
	"strings"
)

// Personalize replaces every {{key}} placeholder with its value. Unknown
// placeholders are left as they are.
func Personalize(tmpl string, vars map[string]string) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

type TrackingEmailData struct {
	CustomerName string
	TrackingCode string
	OrderID      string
	TrackingURL  string
	BrandName    string
}

var trackingTemplate = template.Must(template.New("tracking").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Olá, {{.CustomerName}}!</h2>
  <p>Seu pedido <strong>{{.OrderID}}</strong> foi confirmado e já está em preparação.</p>
  <p>Código de rastreio: <strong>{{.TrackingCode}}</strong></p>
  <p><a href="{{.TrackingURL}}">Acompanhe sua entrega</a></p>
  <p>{{.BrandName}}</p>
</body>
</html>`))

// RenderTrackingEmail returns the subject and HTML body of the tracking
// notification.
func RenderTrackingEmail(data TrackingEmailData) (string, string, error) {
	var buf bytes.Buffer
	if err := trackingTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject := "📦 Pedido " + data.TrackingCode
	if data.BrandName != "" {
		subject += " - " + data.BrandName
	}
	return subject, buf.String(), nil
}

type OfferEmailData struct {
	Name        string
	OfferName   string
	Description string
	Discount    string
	Link        string
	BrandName   string
}

var offerTemplate = template.Must(template.New("offer").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Olá, {{.Name}}!</h2>
  <p>Temos uma oferta especial para você: <strong>{{.OfferName}}</strong></p>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .Discount}}<p>Por apenas <strong>R$ {{.Discount}}</strong></p>{{end}}
  <p><a href="{{.Link}}">Aproveitar oferta</a></p>
</body>
</html>`))

// RenderOfferEmail is used when a lead batch has no custom template.
func RenderOfferEmail(data OfferEmailData) (string, string, error) {
	var buf bytes.Buffer
	if err := offerTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	subject := "🔥 Oferta especial: " + data.OfferName
	if data.BrandName != "" {
		subject += " - " + data.BrandName
	}
	return subject, buf.String(), nil
}
