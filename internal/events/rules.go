package events

// Type — тип события жизненного цикла подписки в терминах провайдера.
type Type string

const (
	TypeInitialPurchase     Type = "INITIAL_PURCHASE"
	TypeRenewal             Type = "RENEWAL"
	TypeCancellation        Type = "CANCELLATION"
	TypeExpiration          Type = "EXPIRATION"
	TypeBillingIssue        Type = "BILLING_ISSUE"
	TypeProductChange       Type = "PRODUCT_CHANGE"
	TypeNonRenewingPurchase Type = "NON_RENEWING_PURCHASE"
	TypeUncancellation      Type = "UNCANCELLATION"
	TypeTransfer            Type = "TRANSFER"
)

// ProductSource указывает, откуда берётся product_id новой записи.
type ProductSource int

const (
	// Поле product_id события.
	ProductFromEvent ProductSource = iota
	// Поле new_product_id события.
	ProductFromNewProduct
	// product_id сбрасывается в null.
	ProductCleared
)

// ExpirySource указывает, откуда берётся expires_at новой записи.
type ExpirySource int

const (
	// Поле expiration_at_ms события.
	ExpiryFromExpiration ExpirySource = iota
	// ExpiryFromGracePeriod — grace_period_expires_at_ms, а при его отсутствии expiration_at_ms.
	ExpiryFromGracePeriod
)

// Rule перечисляет все поля записи Entitlement и их значения для одного типа события.
// Отсутствующие в событии product_id и метки времени дают null.
type Rule struct {
	IsPro        bool
	Product      ProductSource
	Expiry       ExpirySource
	WillRenew    bool
	BillingIssue bool
}

var rules = map[Type]Rule{
	TypeInitialPurchase: {IsPro: true, Product: ProductFromEvent, Expiry: ExpiryFromExpiration, WillRenew: true},
	TypeRenewal:         {IsPro: true, Product: ProductFromEvent, Expiry: ExpiryFromExpiration, WillRenew: true},
	// доступ сохраняется до истечения оплаченного периода
	TypeCancellation:  {IsPro: true, Product: ProductFromEvent, Expiry: ExpiryFromExpiration, WillRenew: false},
	TypeExpiration:    {IsPro: false, Product: ProductCleared, Expiry: ExpiryFromExpiration, WillRenew: false},
	TypeBillingIssue:  {IsPro: true, Product: ProductFromEvent, Expiry: ExpiryFromGracePeriod, WillRenew: true, BillingIssue: true},
	TypeProductChange: {IsPro: true, Product: ProductFromNewProduct, Expiry: ExpiryFromExpiration, WillRenew: true},
}

// Известные типы, которые принимаются, но не меняют запись.
var passive = map[Type]struct{}{
	TypeNonRenewingPurchase: {},
	TypeUncancellation:      {},
	TypeTransfer:            {},
}

// RuleFor возвращает правило перехода для типа события.
// ok == false для пассивных и нераспознанных типов.
func RuleFor(t Type) (Rule, bool) {
	r, ok := rules[t]
	return r, ok
}

// Known сообщает, объявлен ли тип события (с правилом или пассивный).
func Known(t Type) bool {
	if _, ok := rules[t]; ok {
		return true
	}
	_, ok := passive[t]
	return ok
}

// KnownTypes возвращает все объявленные типы событий.
func KnownTypes() []Type {
	return []Type{
		TypeInitialPurchase,
		TypeRenewal,
		TypeCancellation,
		TypeExpiration,
		TypeBillingIssue,
		TypeProductChange,
		TypeNonRenewingPurchase,
		TypeUncancellation,
		TypeTransfer,
	}
}
