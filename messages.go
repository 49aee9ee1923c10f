package identity

import "errors"

// Message is a user-facing failure description in both platform languages.
type Message struct {
	EN string
	FA string
}

// UserMessage maps any engine error to its user-facing message pair.
// Unknown errors collapse to a generic internal failure so backend details
// never leak to clients.
func UserMessage(err error) Message {
	switch {
	case errors.Is(err, ErrValidation):
		return Message{EN: "Invalid request", FA: "درخواست نامعتبر است"}
	case errors.Is(err, ErrUserNotFound):
		return Message{EN: "User not found", FA: "حساب کاربری با این مشخصات وجود ندارد"}
	case errors.Is(err, ErrInvalidCredentials):
		return Message{EN: "Username or password is wrong", FA: "نام کاربری یا رمز عبور نادرست است"}
	case errors.Is(err, ErrNotConfirmed):
		return Message{EN: "Account is not confirmed", FA: "اکانت شما فعال نشده است"}
	case errors.Is(err, ErrTokenInvalid):
		return Message{EN: "Invalid token", FA: "توکن نامعتبر است"}
	case errors.Is(err, ErrTokenNotYetExpired):
		return Message{EN: "This token hasn't expired yet", FA: "این توکن هنوز منقضی نشده است"}
	case errors.Is(err, ErrRefreshNotFound):
		return Message{EN: "This refresh token does not exist", FA: "توکن بازیابی وجود ندارد"}
	case errors.Is(err, ErrRefreshUsed):
		return Message{EN: "This refresh token has been used", FA: "توکن بازیابی قبلا استفاده شده است"}
	case errors.Is(err, ErrRefreshExpired):
		return Message{EN: "This refresh token has expired", FA: "توکن بازیابی منقضی شده است"}
	case errors.Is(err, ErrRefreshInvalidated):
		return Message{EN: "This refresh token has been invalidated", FA: "توکن بازیابی باطل شده است"}
	case errors.Is(err, ErrJTIMismatch):
		return Message{EN: "This refresh token does not match this JWT", FA: "توکن بازیابی با این توکن مطابقت ندارد"}
	case errors.Is(err, ErrIssuanceFailed):
		return Message{EN: "Could not issue a new session, please sign in again", FA: "صدور نشست جدید ممکن نشد، لطفا دوباره وارد شوید"}
	case errors.Is(err, ErrOTPInvalid):
		return Message{EN: "The code is invalid or expired", FA: "کد تایید نادرست یا منقضی شده است"}
	case errors.Is(err, ErrResetGrantExpired):
		return Message{EN: "Token is expired", FA: "توکن شما منقضی شده است"}
	default:
		return Message{EN: "Something went wrong", FA: "خطایی رخ داده است"}
	}
}
