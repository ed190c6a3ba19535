package channel

// Canonical payment channel vocabulary accepted on charge requests.
const (
	Card         = "card"
	BankTransfer = "bank_transfer"
	USSD         = "ussd"
	MobileMoney  = "mobile_money"
	QRCode       = "qr_code"
)

// MapFunc translates one canonical channel token to a provider-side token.
// Returning ok=false drops the entry from the outgoing payload.
type MapFunc func(canonical string) (string, bool)

// Mapper resolves per-provider channel translations from an explicit
// registry populated at startup. A provider without a registered MapFunc
// passes channels through unchanged; a provider registered with nil
// declares that it does not support channel filtering at all, which makes
// Map report omit for every input.
type Mapper struct {
	funcs      map[string]MapFunc
	registered map[string]bool
}

func NewMapper() *Mapper {
	m := &Mapper{
		funcs:      make(map[string]MapFunc),
		registered: make(map[string]bool),
	}
	m.Register("paystack", tableFunc(map[string]string{
		Card:         "card",
		BankTransfer: "bank_transfer",
		USSD:         "ussd",
		MobileMoney:  "mobile_money",
		QRCode:       "qr",
	}))
	m.Register("flutterwave", tableFunc(map[string]string{
		Card:         "card",
		BankTransfer: "banktransfer",
		USSD:         "ussd",
		MobileMoney:  "mobilemoney",
		QRCode:       "qr",
	}))
	m.Register("monnify", tableFunc(map[string]string{
		Card:         "CARD",
		BankTransfer: "ACCOUNT_TRANSFER",
		USSD:         "USSD",
	}))
	// PayPal's checkout has no channel filter on the API surface.
	m.Register("paypal", nil)
	return m
}

func (m *Mapper) Register(provider string, fn MapFunc) {
	m.funcs[provider] = fn
	m.registered[provider] = true
}

// Map translates canonical channels to the provider's vocabulary. The
// second result reports the omit sentinel: callers must leave the channel
// field out of the outgoing payload entirely when it is true. A nil or
// empty channel set always omits. Unknown canonical tokens pass through
// unchanged; tokens a provider table rejects are silently dropped.
func (m *Mapper) Map(provider string, channels []string) ([]string, bool) {
	if len(channels) == 0 {
		return nil, true
	}
	if m.registered[provider] && m.funcs[provider] == nil {
		return nil, true
	}
	fn, ok := m.funcs[provider]
	if !ok || fn == nil {
		out := make([]string, len(channels))
		copy(out, channels)
		return out, false
	}

	out := make([]string, 0, len(channels))
	for _, c := range channels {
		if mapped, keep := fn(c); keep {
			out = append(out, mapped)
		}
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, false
}

func tableFunc(table map[string]string) MapFunc {
	return func(canonical string) (string, bool) {
		if mapped, ok := table[canonical]; ok {
			return mapped, true
		}
		if isCanonical(canonical) {
			// Canonical but absent from this provider's table: unsupported.
			return "", false
		}
		// Unknown token: pass through untouched.
		return canonical, true
	}
}

func isCanonical(token string) bool {
	switch token {
	case Card, BankTransfer, USSD, MobileMoney, QRCode:
		return true
	}
	return false
}
