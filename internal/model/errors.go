package model

import "fmt"

// APIError はクライアントに返すエラー。UIは Category で原因を分類し、Action を対処方法として表示する。
type APIError struct {
	Code     string
	Message  string
	Category string
	Action   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidRole       = "INVALID_ROLE"
	ErrCodeSignInFailed      = "SIGN_IN_FAILED"
	ErrCodeRegisterFailed    = "REGISTER_FAILED"
	ErrCodeActionFailed      = "ACTION_FAILED"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeAvatarTooLarge    = "AVATAR_TOO_LARGE"
	ErrCodeAvatarFetchFailed = "AVATAR_FETCH_FAILED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeCSRFFailed        = "CSRF_FAILED"
	ErrCodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryAccount    = "account"
	CategorySystem     = "system"
)

const actionRetryLater = "しばらく待ってから再度お試しください。"

func newAPIError(code, category, message, action string) *APIError {
	return &APIError{Code: code, Category: category, Message: message, Action: action}
}

func NewUnauthorizedError() *APIError {
	return newAPIError(ErrCodeUnauthorized, CategoryAuth,
		"ログインが必要です。", "サインインしてから操作してください。")
}

// NewForbiddenError はrequired未満のロールで保護された操作を呼んだときのエラー。
func NewForbiddenError(required Role) *APIError {
	return newAPIError(ErrCodeForbidden, CategoryAuth,
		fmt.Sprintf("%s 以上のロールが必要な操作です。", required),
		"必要な権限を管理者に依頼してください。")
}

func NewInvalidRequestError(reason string) *APIError {
	return newAPIError(ErrCodeInvalidRequest, CategoryValidation,
		"リクエストを解釈できません: "+reason,
		"必須項目をJSONで送ってください。")
}

func NewInvalidRoleError(role string) *APIError {
	return newAPIError(ErrCodeInvalidRole, CategoryValidation,
		fmt.Sprintf("ロール %q は存在しません。", role),
		"USER / ADMIN / SUPER_ADMIN から選んでください。")
}

// NewSignInFailedError のmessageはバックエンドの文言か、固定のフォールバック文言。
func NewSignInFailedError(message string) *APIError {
	return newAPIError(ErrCodeSignInFailed, CategoryAuth, message,
		"メールアドレスとパスワードをご確認ください。")
}

func NewRegisterFailedError(message string) *APIError {
	return newAPIError(ErrCodeRegisterFailed, CategoryAuth, message,
		"入力内容を見直してもう一度お試しください。")
}

// NewActionFailedError は失敗したアクション名だけを返す。理由はログにのみ残す。
func NewActionFailedError(action string) *APIError {
	return newAPIError(ErrCodeActionFailed, CategoryAccount,
		"処理を完了できませんでした: "+action, actionRetryLater)
}

func NewInvalidURLError(reason string) *APIError {
	return newAPIError(ErrCodeInvalidURL, CategoryValidation,
		"URLが不正です: "+reason,
		"http:// か https:// で始まるURLを指定してください。")
}

func NewSSRFBlockedError() *APIError {
	return newAPIError(ErrCodeSSRFBlocked, CategoryValidation,
		"このURLへのアクセスは許可されていません。",
		"インターネット上に公開された画像のURLを指定してください。社内ネットワークやプライベートIPは使えません。")
}

func NewAvatarTooLargeError(maxSize int64) *APIError {
	return newAPIError(ErrCodeAvatarTooLarge, CategoryValidation,
		fmt.Sprintf("画像が大きすぎます（上限 %d バイト）。", maxSize),
		"サイズを小さくした画像を指定してください。")
}

func NewAvatarFetchFailedError(reason string) *APIError {
	return newAPIError(ErrCodeAvatarFetchFailed, CategoryAccount,
		"画像を取得できませんでした: "+reason,
		"URLを確認し、時間をおいて再度お試しください。")
}

func NewUserNotFoundError() *APIError {
	return newAPIError(ErrCodeUserNotFound, CategoryAuth,
		"ユーザーが存在しません。", "もう一度サインインしてください。")
}

func NewCSRFFailedError() *APIError {
	return newAPIError(ErrCodeCSRFFailed, CategoryAuth,
		"CSRFトークンが一致しません。",
		"ページを再読み込みしてからやり直してください。")
}

func NewRateLimitedError() *APIError {
	return newAPIError(ErrCodeRateLimited, CategorySystem,
		"短時間のリクエストが多すぎます。", actionRetryLater)
}

// NewInternalError の詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return newAPIError(ErrCodeInternal, CategorySystem,
		"サーバー内部でエラーが発生しました。", actionRetryLater)
}
