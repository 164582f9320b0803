package cartsvc

// CartConfig holds configuration for the cart service.
type CartConfig struct {
	// Locale is the BCP 47 tag used to format money
	Locale string `env:"LOCALE" envDefault:"pt-BR"`
	// CurrencySymbol prefixes formatted amounts
	CurrencySymbol string `env:"CURRENCY_SYMBOL" envDefault:"R$"`
}
