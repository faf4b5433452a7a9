package carrier

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eugenenazirov/shipping-rates/internal/shipment"
	"github.com/eugenenazirov/shipping-rates/internal/units"
)

const (
	// DefaultUSPSEndpoint is the production rate API endpoint.
	DefaultUSPSEndpoint = "https://production.shippingapis.com/ShippingAPI.dll"

	uspsDomesticAPI      = "RateV4"
	uspsInternationalAPI = "IntlRateV2"
	maxResponseBytes     = 1 << 20
)

// USPSServiceCodes maps calculator identifiers to the class ids USPS returns.
var USPSServiceCodes = ServiceCodeTable{
	"dom:0":   "0",
	"dom:1":   "1",
	"dom:3":   "3",
	"dom:4":   "4",
	"dom:6":   "6",
	"dom:7":   "7",
	"intl:1":  "1",
	"intl:2":  "2",
	"intl:15": "15",
}

var (
	markupPattern = regexp.MustCompile(`<[^>]*>`)
	ounces        = decimal.NewFromInt(16)
)

// USPSConfig configures the USPS client.
type USPSConfig struct {
	Endpoint string
	UserID   string
	Timeout  time.Duration
	// RateLimit caps outbound requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// USPSOption configures USPS behaviour.
type USPSOption func(*USPS)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) USPSOption {
	return func(u *USPS) {
		u.http = client
	}
}

// USPS queries the USPS Web Tools rate API.
type USPS struct {
	endpoint string
	userID   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewUSPS creates a USPS client.
func NewUSPS(cfg USPSConfig, logger *zap.Logger, opts ...USPSOption) *USPS {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultUSPSEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	u := &USPS{
		endpoint: endpoint,
		userID:   cfg.UserID,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		u.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Name identifies the carrier.
func (u *USPS) Name() string {
	return "usps"
}

// ResolveServiceCode maps calculator identifiers such as "dom:3" to USPS class ids.
func (u *USPS) ResolveServiceCode(code string) string {
	return USPSServiceCodes.Resolve(code)
}

// FindRates requests every service USPS offers for the package.
func (u *USPS) FindRates(ctx context.Context, pkg shipment.Package) (*RateResponse, error) {
	weight, err := units.ToOunces(pkg.Weight, pkg.Units)
	if err != nil {
		return nil, fmt.Errorf("convert weight: %w", err)
	}

	var (
		api     string
		payload []byte
	)
	if pkg.International() {
		api = uspsInternationalAPI
		payload, err = u.internationalRequest(pkg, weight)
	} else {
		api = uspsDomesticAPI
		payload, err = u.domesticRequest(pkg, weight)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", api, err)
	}

	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrCarrierUnavailable, err)
		}
	}

	query := url.Values{}
	query.Set("API", api)
	query.Set("XML", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrCarrierUnavailable, err)
	}

	start := time.Now()
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCarrierUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrCarrierUnavailable, err)
	}

	u.logger.Debug("usps rates received",
		zap.String("api", api),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	var quotes []RateQuote
	if api == uspsInternationalAPI {
		quotes, err = parseInternationalRates(body)
	} else {
		quotes, err = parseDomesticRates(body)
	}
	if err != nil {
		return nil, err
	}

	return &RateResponse{
		Quotes: quotes,
		Params: map[string]string{"api": api},
	}, nil
}

type uspsDomesticRequest struct {
	XMLName  xml.Name            `xml:"RateV4Request"`
	UserID   string              `xml:"USERID,attr"`
	Revision int                 `xml:"Revision"`
	Package  uspsDomesticPackage `xml:"Package"`
}

type uspsDomesticPackage struct {
	ID             string `xml:"ID,attr"`
	Service        string `xml:"Service"`
	ZipOrigination string `xml:"ZipOrigination"`
	ZipDestination string `xml:"ZipDestination"`
	Pounds         string `xml:"Pounds"`
	Ounces         string `xml:"Ounces"`
	Container      string `xml:"Container"`
	Machinable     bool   `xml:"Machinable"`
}

type uspsInternationalRequest struct {
	XMLName  xml.Name                 `xml:"IntlRateV2Request"`
	UserID   string                   `xml:"USERID,attr"`
	Revision int                      `xml:"Revision"`
	Package  uspsInternationalPackage `xml:"Package"`
}

type uspsInternationalPackage struct {
	ID              string `xml:"ID,attr"`
	Pounds          string `xml:"Pounds"`
	Ounces          string `xml:"Ounces"`
	Machinable      bool   `xml:"Machinable"`
	MailType        string `xml:"MailType"`
	ValueOfContents string `xml:"ValueOfContents"`
	Country         string `xml:"Country"`
	Container       string `xml:"Container"`
	OriginZip       string `xml:"OriginZip"`
}

func (u *USPS) domesticRequest(pkg shipment.Package, weightOz decimal.Decimal) ([]byte, error) {
	pounds, remainder := splitOunces(weightOz)
	return xml.Marshal(uspsDomesticRequest{
		UserID:   u.userID,
		Revision: 2,
		Package: uspsDomesticPackage{
			ID:             "0",
			Service:        "ALL",
			ZipOrigination: zip5(pkg.Origin.Zipcode),
			ZipDestination: zip5(pkg.Destination.Zipcode),
			Pounds:         pounds,
			Ounces:         remainder,
			Machinable:     true,
		},
	})
}

func (u *USPS) internationalRequest(pkg shipment.Package, weightOz decimal.Decimal) ([]byte, error) {
	pounds, remainder := splitOunces(weightOz)
	return xml.Marshal(uspsInternationalRequest{
		UserID:   u.userID,
		Revision: 2,
		Package: uspsInternationalPackage{
			ID:              "0",
			Pounds:          pounds,
			Ounces:          remainder,
			Machinable:      true,
			MailType:        "Package",
			ValueOfContents: "0",
			Country:         countryName(pkg.Destination.Country),
			Container:       "RECTANGULAR",
			OriginZip:       zip5(pkg.Origin.Zipcode),
		},
	})
}

type uspsError struct {
	Number      string `xml:"Number"`
	Description string `xml:"Description"`
}

type uspsDomesticResponse struct {
	Packages []struct {
		Error    *uspsError `xml:"Error"`
		Postages []struct {
			ClassID     string `xml:"CLASSID,attr"`
			MailService string `xml:"MailService"`
			Rate        string `xml:"Rate"`
		} `xml:"Postage"`
	} `xml:"Package"`
}

type uspsInternationalResponse struct {
	Packages []struct {
		Error    *uspsError `xml:"Error"`
		Services []struct {
			ID          string `xml:"ID,attr"`
			Postage     string `xml:"Postage"`
			Description string `xml:"SvcDescription"`
		} `xml:"Service"`
	} `xml:"Package"`
}

func parseDomesticRates(body []byte) ([]RateQuote, error) {
	if err := checkRootError(body, "RateV4Response"); err != nil {
		return nil, err
	}

	var resp uspsDomesticResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var quotes []RateQuote
	for _, p := range resp.Packages {
		if p.Error != nil {
			return nil, packageError(p.Error)
		}
		for _, postage := range p.Postages {
			price, err := parsePrice(postage.Rate)
			if err != nil {
				return nil, err
			}
			quotes = append(quotes, RateQuote{
				ServiceCode: strings.TrimSpace(postage.ClassID),
				ServiceName: cleanServiceName(postage.MailService),
				Price:       price,
			})
		}
	}
	return quotes, nil
}

func parseInternationalRates(body []byte) ([]RateQuote, error) {
	if err := checkRootError(body, "IntlRateV2Response"); err != nil {
		return nil, err
	}

	var resp uspsInternationalResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var quotes []RateQuote
	for _, p := range resp.Packages {
		if p.Error != nil {
			return nil, packageError(p.Error)
		}
		for _, svc := range p.Services {
			price, err := parsePrice(svc.Postage)
			if err != nil {
				return nil, err
			}
			quotes = append(quotes, RateQuote{
				ServiceCode: strings.TrimSpace(svc.ID),
				ServiceName: cleanServiceName(svc.Description),
				Price:       price,
			})
		}
	}
	return quotes, nil
}

// checkRootError inspects the document element: USPS answers authorization
// and request-level failures with a bare <Error> document.
func checkRootError(body []byte, expected string) error {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty document", ErrMalformedResponse)
			}
			return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case expected:
			return nil
		case "Error":
			var e uspsError
			if err := dec.DecodeElement(&e, &start); err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
			}
			return fmt.Errorf("%w: usps error %s: %s", ErrCarrierUnavailable, e.Number, strings.TrimSpace(e.Description))
		default:
			return fmt.Errorf("%w: unexpected root element %q", ErrMalformedResponse, start.Name.Local)
		}
	}
}

func packageError(e *uspsError) error {
	return fmt.Errorf("%w: usps package error %s: %s", ErrCarrierUnavailable, e.Number, strings.TrimSpace(e.Description))
}

// parsePrice converts a dollar amount such as "14.10" into cents.
func parsePrice(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid rate %q", ErrMalformedResponse, raw)
	}
	cents := amount.Shift(2)
	if cents.IsNegative() || !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: invalid rate %q", ErrMalformedResponse, raw)
	}
	return cents.IntPart(), nil
}

func cleanServiceName(raw string) string {
	name := html.UnescapeString(raw)
	name = markupPattern.ReplaceAllString(name, "")
	return strings.TrimSpace(html.UnescapeString(name))
}

func splitOunces(weightOz decimal.Decimal) (string, string) {
	total := weightOz.Round(2)
	pounds := total.Div(ounces).Floor()
	remainder := total.Sub(pounds.Mul(ounces))
	return pounds.String(), remainder.String()
}

func zip5(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) > 5 {
		return zip[:5]
	}
	return zip
}

var countryNames = map[string]string{
	"AU": "Australia",
	"CA": "Canada",
	"DE": "Germany",
	"FR": "France",
	"GB": "United Kingdom (Great Britain)",
	"JP": "Japan",
	"MX": "Mexico",
}

func countryName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if name, ok := countryNames[code]; ok {
		return name
	}
	return code
}
