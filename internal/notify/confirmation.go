package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Confirmation holds everything the booking confirmation email shows.
type Confirmation struct {
	GuestName    string
	GuestEmail   string
	Reference    string
	HotelName    string
	HotelAddress string
	HotelPhone   string
	HotelEmail   string
	RoomTypeName string
	CheckIn      time.Time
	CheckOut     time.Time
	Nights       int
	Guests       int
	RoomRate     decimal.Decimal
	Subtotal     decimal.Decimal
	Taxes        decimal.Decimal
	TaxRate      decimal.Decimal
	Total        decimal.Decimal
	Currency     string
}

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: #1a1a1a; color: #fff; padding: 20px; text-align: center; }
.details { background: #fff; padding: 20px; margin: 20px 0; border-radius: 8px; }
.row { padding: 8px 0; border-bottom: 1px solid #eee; }
.label { font-weight: bold; display: inline-block; width: 200px; }
.total { font-size: 1.2em; color: #d4af37; font-weight: bold; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Booking Confirmation</h1>
    <p>Reference: {{.Reference}}</p>
  </div>
  <p>Dear {{.GuestName}},</p>
  <p>Thank you for your booking! Your reservation has been confirmed.</p>
  <div class="details">
    <h2>Booking Details</h2>
    <div class="row"><span class="label">Hotel:</span> {{.HotelName}}</div>
    <div class="row"><span class="label">Room Type:</span> {{.RoomTypeName}}</div>
    <div class="row"><span class="label">Check-in:</span> {{.CheckInText}}</div>
    <div class="row"><span class="label">Check-out:</span> {{.CheckOutText}}</div>
    <div class="row"><span class="label">Number of Nights:</span> {{.Nights}}</div>
    <div class="row"><span class="label">Number of Guests:</span> {{.Guests}}</div>
    <div class="row"><span class="label">Room Rate (per night):</span> {{.RateText}}</div>
    <div class="row"><span class="label">Subtotal:</span> {{.SubtotalText}}</div>
    <div class="row"><span class="label">Taxes ({{.TaxPercent}}%):</span> {{.TaxesText}}</div>
    <div class="row"><span class="label total">Total Amount:</span> <span class="total">{{.TotalText}}</span></div>
  </div>
  <div class="details">
    <h2>Hotel Information</h2>
    <p><strong>Address:</strong> {{.HotelAddress}}</p>
    <p><strong>Phone:</strong> {{.HotelPhone}}</p>
    <p><strong>Email:</strong> {{.HotelEmail}}</p>
  </div>
  <p>Please arrive at the hotel after 2:00 PM on your check-in date. Check-out time is 11:00 AM.</p>
  <p>This is an automated email, please do not reply.</p>
</div>
</body>
</html>`))

type confirmationView struct {
	Confirmation
	CheckInText  string
	CheckOutText string
	RateText     string
	SubtotalText string
	TaxesText    string
	TotalText    string
	TaxPercent   string
}

// BuildConfirmation renders the confirmation email for a booking.
func BuildConfirmation(c Confirmation) (Message, error) {
	if c.GuestName == "" {
		c.GuestName = "Guest"
	}
	na := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}
	c.HotelAddress = na(c.HotelAddress)
	c.HotelPhone = na(c.HotelPhone)
	c.HotelEmail = na(c.HotelEmail)

	money := func(d decimal.Decimal) string {
		return formatMoney(c.Currency, d)
	}
	view := confirmationView{
		Confirmation: c,
		CheckInText:  c.CheckIn.Format("Monday, 2 January 2006"),
		CheckOutText: c.CheckOut.Format("Monday, 2 January 2006"),
		RateText:     money(c.RoomRate),
		SubtotalText: money(c.Subtotal),
		TaxesText:    money(c.Taxes),
		TotalText:    money(c.Total),
		TaxPercent:   c.TaxRate.Mul(decimal.NewFromInt(100)).String(),
	}

	var html bytes.Buffer
	if err := confirmationHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("failed to render confirmation: %w", err)
	}

	text := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Thank you for your booking! Your reservation has been confirmed.\n\n"+
			"Booking Reference: %s\n"+
			"Hotel: %s\n"+
			"Room Type: %s\n"+
			"Check-in: %s\n"+
			"Check-out: %s\n"+
			"Nights: %d\n"+
			"Guests: %d\n"+
			"Room Rate (per night): %s\n"+
			"Subtotal: %s\n"+
			"Taxes (%s%%): %s\n"+
			"Total Amount: %s\n\n"+
			"Hotel address: %s\nPhone: %s\nEmail: %s\n",
		c.GuestName, c.Reference, c.HotelName, c.RoomTypeName,
		view.CheckInText, view.CheckOutText, c.Nights, c.Guests,
		view.RateText, view.SubtotalText, view.TaxPercent, view.TaxesText, view.TotalText,
		c.HotelAddress, c.HotelPhone, c.HotelEmail,
	)

	return Message{
		ToEmail:  c.GuestEmail,
		ToName:   c.GuestName,
		Subject:  "Booking Confirmation - " + c.Reference,
		Text:     text,
		HTML:     html.String(),
		CustomID: c.Reference,
	}, nil
}

func formatMoney(currency string, d decimal.Decimal) string {
	switch strings.ToUpper(currency) {
	case "", "INR":
		return "₹" + d.StringFixed(2)
	default:
		return strings.ToUpper(currency) + " " + d.StringFixed(2)
	}
}
