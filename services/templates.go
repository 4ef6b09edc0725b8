package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fenilmodi00/ipogains-backend/models"
)

// emailContent is a rendered subject and HTML body pair.
type emailContent struct {
	Subject string
	HTML    string
}

var emailLayout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1a1a2e; max-width: 600px; margin: 0 auto; padding: 16px;">
  <h2 style="color: #0f3460;">{{.Heading}}</h2>
  {{.Body}}
  {{if .CTALink}}<p><a href="{{.CTALink}}" style="background: #0f3460; color: #ffffff; padding: 10px 20px; text-decoration: none; border-radius: 4px;">{{.CTAText}}</a></p>{{end}}
  <hr style="border: none; border-top: 1px solid #e0e0e0; margin-top: 24px;">
  <p style="font-size: 12px; color: #888;">
    You are receiving this because you subscribed to IPOGains updates.
    {{if .UnsubscribeURL}}<a href="{{.UnsubscribeURL}}" style="color: #888;">Unsubscribe</a>{{end}}
  </p>
</body>
</html>`))

type layoutData struct {
	Heading        string
	Body           template.HTML
	CTALink        string
	CTAText        string
	UnsubscribeURL string
}

func renderLayout(data layoutData) string {
	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, data); err != nil {
		logrus.WithError(err).Error("Failed to render email template")
		return ""
	}
	return buf.String()
}

func renderOTPEmail(intro, code string, validity time.Duration) string {
	body := fmt.Sprintf(
		`<p>%s</p><p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
		<p>The code expires in %d minutes. If you did not request it, ignore this email.</p>`,
		template.HTMLEscapeString(intro), template.HTMLEscapeString(code),
		int(validity.Minutes()))
	return renderLayout(layoutData{
		Heading: "Your verification code",
		Body:    template.HTML(body),
	})
}

func renderWelcomeEmail(sub *models.Subscriber, frontendURL, unsubscribeURL string) string {
	greeting := "Hi"
	if sub.Name != "" {
		greeting = "Hi " + template.HTMLEscapeString(sub.Name)
	}
	body := fmt.Sprintf(
		`<p>%s,</p><p>You are now subscribed to IPOGains. We will keep you posted on
		new IPO listings, subscription figures, grey-market premium moves and
		allotment results.</p>`, greeting)
	return renderLayout(layoutData{
		Heading:        "Welcome to IPOGains",
		Body:           template.HTML(body),
		CTALink:        frontendURL,
		CTAText:        "Browse live IPOs",
		UnsubscribeURL: unsubscribeURL,
	})
}

func renderLoginAlert(at time.Time, frontendURL string) string {
	body := fmt.Sprintf(
		`<p>Your account was signed in to on %s (IST).</p>
		<p>If this was you, no action is needed. If not, reset your password immediately.</p>`,
		at.In(istZone).Format("2 January 2006 at 15:04"))
	return renderLayout(layoutData{
		Heading: "New sign-in",
		Body:    template.HTML(body),
		CTALink: frontendURL,
		CTAText: "Go to IPOGains",
	})
}

// templateFor renders the email for one notification and subscriber, or
// returns nil when the subscriber's preferences opt out of this type.
func templateFor(n *models.Notification, ipo *models.IPO, sub *models.Subscriber, frontendURL, unsubscribeURL string) *emailContent {
	prefs := sub.Preferences
	switch n.Type {
	case models.NotificationNewIPO:
		if !prefs.NewIPO {
			return nil
		}
	case models.NotificationStatusChange, models.NotificationListing:
		if !prefs.StatusChange {
			return nil
		}
	case models.NotificationGMPUpdate:
		if !prefs.GMPUpdates {
			return nil
		}
	case models.NotificationSubscriptionUpdate:
		if !prefs.GMPUpdates {
			return nil
		}
	case models.NotificationAllotmentAvailable:
		if !prefs.AllotmentStatus {
			return nil
		}
	default:
		return nil
	}

	name := n.IPOName
	if ipo != nil {
		name = ipo.CompanyName
	}
	escaped := template.HTMLEscapeString(name)

	var subject string
	var body string
	ctaText := "View details"
	switch n.Type {
	case models.NotificationNewIPO:
		subject = fmt.Sprintf("New IPO: %s", name)
		body = fmt.Sprintf(`<p><strong>%s</strong> has been added to the IPO calendar.</p>`, escaped)
		if ipo != nil && ipo.OpenDate != nil {
			body += fmt.Sprintf(`<p>Bidding opens on %s.</p>`, ipo.OpenDate.Format("2 January 2006"))
		}
	case models.NotificationStatusChange:
		var newStatus string
		_ = json.Unmarshal(n.NewValue, &newStatus)
		subject = fmt.Sprintf("%s is now %s", name, newStatus)
		body = fmt.Sprintf(`<p><strong>%s</strong> moved to <strong>%s</strong>.</p><p>%s</p>`,
			escaped, template.HTMLEscapeString(newStatus), template.HTMLEscapeString(n.Message))
	case models.NotificationGMPUpdate:
		subject = fmt.Sprintf("GMP update: %s", name)
		body = fmt.Sprintf(`<p>%s</p>`, template.HTMLEscapeString(n.Message))
		if ipo != nil {
			if latest := ipo.LatestGMP(); latest != nil {
				body += fmt.Sprintf(`<p>Current GMP: <strong>₹%.0f (%.1f%%)</strong></p>`,
					latest.Value, latest.Percentage)
			}
		}
	case models.NotificationSubscriptionUpdate:
		subject = fmt.Sprintf("Subscription update: %s", name)
		body = fmt.Sprintf(`<p>%s</p>`, template.HTMLEscapeString(n.Message))
		if ipo != nil {
			body += fmt.Sprintf(
				`<p>Retail: %.2fx &middot; NII: %.2fx &middot; QIB: %.2fx &middot; Total: %.2fx</p>`,
				ipo.Subscription.Retail, ipo.Subscription.NII, ipo.Subscription.QIB, ipo.Subscription.Total)
		}
	case models.NotificationAllotmentAvailable:
		subject = fmt.Sprintf("Allotment out: %s", name)
		body = fmt.Sprintf(`<p>Allotment results for <strong>%s</strong> are available. Check your application status now.</p>`, escaped)
		ctaText = "Check allotment"
	case models.NotificationListing:
		subject = fmt.Sprintf("%s has listed", name)
		body = fmt.Sprintf(`<p>%s</p>`, template.HTMLEscapeString(n.Message))
		if ipo != nil && ipo.ListingPrice != nil && ipo.ListingGain != nil {
			body += fmt.Sprintf(`<p>Listing price: <strong>₹%.2f</strong> (%+.1f%% over the upper band)</p>`,
				*ipo.ListingPrice, ipo.ListingGain.Percentage)
		}
	}

	ctaLink := frontendURL
	if ipo != nil {
		ctaLink = fmt.Sprintf("%s/ipo/%s", frontendURL, ipo.ID)
	}

	return &emailContent{
		Subject: subject,
		HTML: renderLayout(layoutData{
			Heading:        subject,
			Body:           template.HTML(body),
			CTALink:        ctaLink,
			CTAText:        ctaText,
			UnsubscribeURL: unsubscribeURL,
		}),
	}
}

// renderDailyDigest builds the morning summary email. Returns "" when there
// is nothing worth sending.
func renderDailyDigest(open, upcoming []*models.IPO, recent []*models.Notification, frontendURL, unsubscribeURL string) *emailContent {
	if len(open) == 0 && len(upcoming) == 0 && len(recent) == 0 {
		return nil
	}

	var body bytes.Buffer
	section := func(title string, ipos []*models.IPO) {
		if len(ipos) == 0 {
			return
		}
		fmt.Fprintf(&body, `<h3 style="color: #0f3460;">%s</h3><ul>`, title)
		for _, ipo := range ipos {
			fmt.Fprintf(&body, `<li><strong>%s</strong> (%s)`,
				template.HTMLEscapeString(ipo.CompanyName), template.HTMLEscapeString(ipo.Category))
			if ipo.CloseDate != nil && ipo.Status == models.StatusOpen {
				fmt.Fprintf(&body, ` — closes %s`, ipo.CloseDate.Format("2 Jan"))
			} else if ipo.OpenDate != nil && ipo.Status == models.StatusUpcoming {
				fmt.Fprintf(&body, ` — opens %s`, ipo.OpenDate.Format("2 Jan"))
			}
			if latest := ipo.LatestGMP(); latest != nil {
				fmt.Fprintf(&body, `, GMP ₹%.0f`, latest.Value)
			}
			body.WriteString(`</li>`)
		}
		body.WriteString(`</ul>`)
	}

	section("Open for bidding", open)
	section("Opening soon", upcoming)

	if len(recent) > 0 {
		body.WriteString(`<h3 style="color: #0f3460;">Last 24 hours</h3><ul>`)
		for _, n := range recent {
			fmt.Fprintf(&body, `<li>%s</li>`, template.HTMLEscapeString(n.Title))
		}
		body.WriteString(`</ul>`)
	}

	return &emailContent{
		Subject: fmt.Sprintf("IPOGains daily digest — %s", time.Now().In(istZone).Format("2 January")),
		HTML: renderLayout(layoutData{
			Heading:        "Your IPO morning briefing",
			Body:           template.HTML(body.String()),
			CTALink:        frontendURL,
			CTAText:        "Open IPOGains",
			UnsubscribeURL: unsubscribeURL,
		}),
	}
}
