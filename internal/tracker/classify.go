package tracker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
	"github.com/pauljones0/bfmr-deal-bot/internal/scraper"
	"github.com/pauljones0/bfmr-deal-bot/internal/util"
)

// ClassifyReserve reads the page shown after pressing reserve. A reserve
// control that is gone or disabled means the account limit was reached.
func ClassifyReserve(doc *goquery.Document, sel scraper.TrackerSelectors) models.ReserveResponse {
	message := strings.ToLower(strings.TrimSpace(doc.Find(sel.ReserveMessage).Text()))

	switch {
	case matches(message, sel.SuccessText):
		return models.ReserveResponse{Success: true, Status: models.ReserveReserved, Detail: message}
	case matches(message, sel.ClosedText):
		return models.ReserveResponse{Status: models.ReserveClosed, Detail: message}
	case matches(message, sel.LimitText):
		return models.ReserveResponse{Status: models.ReserveLimitReached, Detail: message}
	case matches(message, sel.ErrorText):
		return models.ReserveResponse{Status: models.ReserveError, Detail: message}
	}

	button := doc.Find(sel.ReserveButton)
	if button.Length() == 0 || isDisabled(button) {
		return models.ReserveResponse{Status: models.ReserveLimitReached, Detail: "reserve control disabled"}
	}
	return models.ReserveResponse{Status: models.ReserveUnknown, Detail: message}
}

// ParseReservations maps deal code to reserved quantity on the account's
// reservation list.
func ParseReservations(doc *goquery.Document, sel scraper.TrackerSelectors) map[string]int {
	out := make(map[string]int)
	doc.Find(sel.ReservationRow).Each(func(_ int, row *goquery.Selection) {
		code := strings.TrimSpace(row.Find(sel.ReservationCode).First().Text())
		if code == "" {
			return
		}
		out[code] += util.SafeAtoi(util.CleanNumericString(row.Find(sel.ReservationQuantity).First().Text()))
	})
	return out
}

// LoggedIn reports whether the page shows a signed-in account.
func LoggedIn(doc *goquery.Document, sel scraper.TrackerSelectors) bool {
	return doc.Find(sel.LoggedInMarker).Length() > 0
}

// LoginFailedFatally reports whether the login page rejected the credentials
// themselves, as opposed to a transient failure.
func LoginFailedFatally(doc *goquery.Document, sel scraper.TrackerSelectors) bool {
	message := strings.ToLower(doc.Find(sel.LoginError).Text())
	return matches(message, sel.FatalLoginText)
}

func matches(text string, needles []string) bool {
	if text == "" {
		return false
	}
	for _, n := range needles {
		if n != "" && strings.Contains(text, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func isDisabled(s *goquery.Selection) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if v, ok := s.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	return s.HasClass("disabled")
}
