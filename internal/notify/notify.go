// Package notify формирует письма-уведомления о ходе рассмотрения заявки на членство.
package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/mmeshcher/clubhub/internal/model"
)

var templates = template.Must(template.New("notify").Parse(`
{{define "received"}}<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif;">
<h2>{{.Club}}: application received</h2>
<p>Dear {{.Name}},</p>
<p>We have received your membership application. It will be reviewed by the club executives shortly.</p>
<table>
<tr><td><b>Payment method</b></td><td>{{.PaymentMethod}}</td></tr>
<tr><td><b>Transaction ID</b></td><td>{{.TransactionID}}</td></tr>
<tr><td><b>Amount</b></td><td>{{.Amount}}</td></tr>
</table>
<p>You will get another email once a decision is made.</p>
</body></html>{{end}}

{{define "approved"}}<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif;">
<h2>Welcome to {{.Club}}!</h2>
<p>Dear {{.Name}},</p>
<p>Your membership has been approved.</p>
<p>Your member ID: <b>{{.UniqueID}}</b></p>
<p>You can download your digital ID card from your profile.</p>
</body></html>{{end}}

{{define "rejected"}}<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif;">
<h2>{{.Club}}: application update</h2>
<p>Dear {{.Name}},</p>
<p>Unfortunately your membership application was not approved.</p>
<p><b>Reason:</b> {{.Reason}}</p>
<p>You are welcome to submit a new application.</p>
</body></html>{{end}}
`))

// Renderer формирует письма от имени клуба.
type Renderer struct {
	club string
}

// NewRenderer создаёт Renderer для клуба с указанным названием.
func NewRenderer(club string) *Renderer {
	return &Renderer{club: club}
}

type templateData struct {
	Club          string
	Name          string
	PaymentMethod string
	TransactionID string
	Amount        string
	UniqueID      string
	Reason        string
}

// Received формирует письмо о получении заявки.
func (r *Renderer) Received(u *model.User, app *model.Application) (model.Email, error) {
	return r.render("received", u.Email, r.club+": membership application received", templateData{
		Club:          r.club,
		Name:          u.Name,
		PaymentMethod: string(app.PaymentMethod),
		TransactionID: app.TransactionID,
		Amount:        app.Amount.StringFixed(2),
	})
}

// Approved формирует письмо об одобрении членства с выданным идентификатором.
func (r *Renderer) Approved(u *model.User, uniqueID string) (model.Email, error) {
	return r.render("approved", u.Email, r.club+": membership approved", templateData{
		Club:     r.club,
		Name:     u.Name,
		UniqueID: uniqueID,
	})
}

// Rejected формирует письмо об отклонении заявки.
func (r *Renderer) Rejected(u *model.User, reason string) (model.Email, error) {
	return r.render("rejected", u.Email, r.club+": membership application rejected", templateData{
		Club:   r.club,
		Name:   u.Name,
		Reason: reason,
	})
}

func (r *Renderer) render(name, to, subject string, data templateData) (model.Email, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return model.Email{}, fmt.Errorf("render %s email: %w", name, err)
	}
	return model.Email{To: to, Subject: subject, HTML: buf.String()}, nil
}
