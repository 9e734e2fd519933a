package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

type SelectorConfig struct {
	Board   BoardSelectors    `json:"board"`
	Tracker TrackerSelectors  `json:"tracker"`
	Amazon  RetailerSelectors `json:"amazon"`
	BestBuy RetailerSelectors `json:"bestbuy"`
}

// BoardSelectors locate deals on the public board pages.
type BoardSelectors struct {
	ListingDealLink  string `json:"listing_deal_link"` // e.g., "a.deal-card-link"
	ListingNextPage  string `json:"listing_next_page"`
	DealRetailerLink string `json:"deal_retailer_link"`
	DealImage        string `json:"deal_image"`
}

// TrackerSelectors drive the logged-in reservation pages.
type TrackerSelectors struct {
	LoginEmail     string   `json:"login_email"`
	LoginPassword  string   `json:"login_password"`
	LoginSubmit    string   `json:"login_submit"`
	LoggedInMarker string   `json:"logged_in_marker"`
	LoginError     string   `json:"login_error"`
	FatalLoginText []string `json:"fatal_login_text"`

	QuantityInput  string   `json:"quantity_input"`
	ReserveButton  string   `json:"reserve_button"`
	ReserveMessage string   `json:"reserve_message"`
	SuccessText    []string `json:"success_text"`
	ClosedText     []string `json:"closed_text"`
	LimitText      []string `json:"limit_text"`
	ErrorText      []string `json:"error_text"`

	ReservationRow      string `json:"reservation_row"`
	ReservationCode     string `json:"reservation_code"`
	ReservationQuantity string `json:"reservation_quantity"`
	UnreserveButton     string `json:"unreserve_button"`
}

// RetailerSelectors read price, stock and condition off a product page.
type RetailerSelectors struct {
	Title            string   `json:"title"`
	Price            []string `json:"price"`
	Availability     string   `json:"availability"`
	Condition        string   `json:"condition"`
	AddToCart        string   `json:"add_to_cart"`
	QuantitySelect   string   `json:"quantity_select"`
	CartConfirmation string   `json:"cart_confirmation"`
	Captcha          string   `json:"captcha"`
	OutOfStockText   []string `json:"out_of_stock_text"`
	UsedText         []string `json:"used_text"`
	NoShippingText   []string `json:"no_shipping_text"`
	BotText          []string `json:"bot_text"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes,
// filling any section left empty from the defaults.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}

	defaults := DefaultSelectors()
	if config.Board.ListingDealLink == "" {
		config.Board = defaults.Board
	}
	if config.Tracker.ReserveButton == "" {
		config.Tracker = defaults.Tracker
	}
	if len(config.Amazon.Price) == 0 {
		config.Amazon = defaults.Amazon
	}
	if len(config.BestBuy.Price) == 0 {
		config.BestBuy = defaults.BestBuy
	}
	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Board: BoardSelectors{
			ListingDealLink:  "a[href*='/deals/']",
			ListingNextPage:  "a[rel='next']",
			DealRetailerLink: "a.retailer-link, a[data-retailer]",
			DealImage:        "img.deal-image",
		},
		Tracker: TrackerSelectors{
			LoginEmail:     "input[name='email']",
			LoginPassword:  "input[name='password']",
			LoginSubmit:    "button[type='submit']",
			LoggedInMarker: "a[href*='logout']",
			LoginError:     ".alert-danger, .error-message",
			FatalLoginText: []string{"invalid credentials", "incorrect password", "account locked", "account suspended"},

			QuantityInput:  "input[name='quantity']",
			ReserveButton:  "button.reserve-btn",
			ReserveMessage: ".alert, .toast-message",
			SuccessText:    []string{"reserved successfully", "reservation confirmed", "successfully reserved"},
			ClosedText:     []string{"reservations are closed", "deal is closed", "no longer accepting"},
			LimitText:      []string{"limit reached", "maximum quantity", "reservation limit"},
			ErrorText:      []string{"something went wrong", "please try again", "error"},

			ReservationRow:      "tr.reservation-row",
			ReservationCode:     ".deal-code",
			ReservationQuantity: ".reserved-qty",
			UnreserveButton:     "button.unreserve-btn",
		},
		Amazon: RetailerSelectors{
			Title:            "#productTitle",
			Price:            []string{"#corePrice_feature_div .a-offscreen", "#corePriceDisplay_desktop_feature_div .a-offscreen", "#price_inside_buybox", "#priceblock_ourprice"},
			Availability:     "#availability",
			Condition:        "#renewedProgramDescriptionAtf, #usedBuySection",
			AddToCart:        "#add-to-cart-button",
			QuantitySelect:   "#quantity",
			CartConfirmation: "#NATC_SMART_WAGON_CONF_MSG_SUCCESS, #sw-atc-confirmation",
			Captcha:          "form[action*='validateCaptcha']",
			OutOfStockText:   []string{"currently unavailable", "out of stock", "temporarily out of stock"},
			UsedText:         []string{"renewed", "refurbished", "used - "},
			NoShippingText:   []string{"cannot be shipped to your selected delivery location", "does not ship to"},
			BotText:          []string{"enter the characters you see below", "sorry, we just need to make sure you're not a robot"},
		},
		BestBuy: RetailerSelectors{
			Title:          ".sku-title h1",
			Price:          []string{".priceView-customer-price span[aria-hidden='true']", "[data-testid='customer-price'] span"},
			Availability:   ".fulfillment-add-to-cart-button",
			Condition:      ".open-box-option, .refurbished-badge",
			AddToCart:      "button.add-to-cart-button",
			Captcha:        "#px-captcha",
			OutOfStockText: []string{"sold out", "coming soon", "unavailable nearby"},
			UsedText:       []string{"refurbished", "open-box", "pre-owned"},
			NoShippingText: []string{"shipping unavailable"},
			BotText:        []string{"access denied", "please verify you are a human"},
		},
	}
}
