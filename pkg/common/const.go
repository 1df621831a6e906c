package common

const (
	KEY_CURRENT_MODEL = "current_model:%s"
)

// HEALTH_CHECK_SYMBOL is quoted by provider health checks.
const HEALTH_CHECK_SYMBOL = "AAPL"

const (
	KEY_LOG_HOOK_SEND_ALERT = "send_alert"
)
