package enum

// CartMode 表示購物車目前的持久化位置
type CartMode string

const (
	CartModeGuest         CartMode = "guest"
	CartModeAuthenticated CartMode = "authenticated"
)
