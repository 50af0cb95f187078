package worker

import (
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
)

type offerContent struct {
	OfferName       string
	Discount        string
	Link            string
	Description     string
	SubjectTemplate string
	HTMLTemplate    string
}

// leadVars are the placeholders available to offer templates.
func leadVars(lead entity.Lead, offer offerContent) map[string]string {
	vars := make(map[string]string, len(lead.Extra)+7)
	for k, v := range lead.Extra {
		vars[k] = v
	}
	name := strings.TrimSpace(lead.Nome)
	if name == "" {
		name = entity.DefaultCustomerName
	}
	vars["nome"] = name
	vars["oferta"] = offer.OfferName
	vars["desconto"] = offer.Discount
	vars["cpf"] = lead.CPF
	vars["link"] = offer.Link
	vars["descricao"] = offer.Description
	vars["email"] = lead.Email
	return vars
}

// renderOffer personalizes the custom templates when present and falls back
// to the built-in offer email otherwise.
func renderOffer(lead entity.Lead, offer offerContent, brand string) (string, string, error) {
	vars := leadVars(lead, offer)

	if offer.HTMLTemplate == "" {
		subject, html, err := mail.RenderOfferEmail(mail.OfferEmailData{
			Name:        vars["nome"],
			OfferName:   offer.OfferName,
			Description: offer.Description,
			Discount:    offer.Discount,
			Link:        offer.Link,
			BrandName:   brand,
		})
		if err != nil {
			return "", "", err
		}
		if offer.SubjectTemplate != "" {
			subject = mail.Personalize(offer.SubjectTemplate, vars)
		}
		return subject, html, nil
	}

	subject := mail.Personalize(offer.SubjectTemplate, vars)
	if subject == "" {
		subject = offer.OfferName
	}
	return subject, mail.Personalize(offer.HTMLTemplate, vars), nil
}

func (c OfferConfig) content() offerContent {
	return offerContent{
		OfferName:       c.OfferName,
		Discount:        c.Discount,
		Link:            c.OfferLink,
		Description:     c.Description,
		SubjectTemplate: c.Subject,
		HTMLTemplate:    c.EmailTemplate,
	}
}

func (c CampaignConfig) content() offerContent {
	return offerContent{
		OfferName:       c.OfferName,
		Discount:        c.Discount,
		Link:            c.OfferLink,
		Description:     c.Description,
		SubjectTemplate: c.SubjectTemplate,
		HTMLTemplate:    c.HTMLTemplate,
	}
}
