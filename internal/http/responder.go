package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/lesson-scheduler/internal/application"
)

var (
	errBadRequestBody     = errors.New("無効なリクエスト形式です。")
	errInvalidQuery       = errors.New("クエリパラメータが正しくありません。")
	errMissingAdminHeader = errors.New("管理者 ID を指定してください。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr        *application.ValidationError
		conflictErr *application.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  localizeValidationErrors(vErr),
		})
	case errors.As(err, &conflictErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "CONFLICT",
			Message:   translateConflictMessage(conflictErr.Message),
		})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "CONFLICT",
			Message:   localizedStatusMessage(http.StatusConflict),
		})
	case errors.Is(err, application.ErrUnauthenticated):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_REQUIRED",
			Message:   localizedStatusMessage(http.StatusUnauthorized),
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   localizedStatusMessage(http.StatusForbidden),
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: localizedStatusMessage(http.StatusNotFound)})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "サービスは現在利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "is required":
		return "必須項目です。"
	case "is invalid":
		return "値が正しくありません。"
	case "must be a valid email address":
		return "メールアドレスの形式が不正です。"
	case "must be a valid IANA timezone":
		return "有効なタイムゾーンを指定してください。"
	case "must be a date in YYYY-MM-DD format", "must be dates in YYYY-MM-DD format":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "must contain only lowercase letters, digits and hyphens":
		return "英小文字・数字・ハイフンのみ使用できます。"
	case "is already taken":
		return "既に使用されています。"
	case "must be after start_minute":
		return "終了時刻は開始時刻より後である必要があります。"
	case "must not be before travel_start_date":
		return "滞在終了日は滞在開始日以降である必要があります。"
	case "must not be before from":
		return "終了日は開始日以降である必要があります。"
	case "must fall on date in timezone":
		return "開始日時が指定された日付と一致しません。"
	}

	switch {
	case strings.HasPrefix(message, "must be one of: "):
		return "次のいずれかを指定してください: " + strings.TrimPrefix(message, "must be one of: ")
	case strings.HasPrefix(message, "must be greater than "):
		return strings.TrimPrefix(message, "must be greater than ") + " より大きい値を指定してください。"
	case strings.HasPrefix(message, "must be at least "):
		return strings.TrimPrefix(message, "must be at least ") + " 以上の値を指定してください。"
	case strings.HasPrefix(message, "must be at most "):
		return strings.TrimPrefix(message, "must be at most ") + " 以下の値を指定してください。"
	case strings.HasPrefix(message, "windows on day "):
		return "同じ曜日の時間帯が重複しています。"
	}
	return message
}

func translateConflictMessage(message string) string {
	switch {
	case message == "the selected time is no longer available":
		return "選択された時間は既に予約できません。別の時間を選択してください。"
	case message == "cancelled bookings cannot be rescheduled":
		return "キャンセル済みの予約は変更できません。"
	case strings.HasPrefix(message, "meeting type has"):
		return "今後の予約が残っているため削除できません。"
	}
	return localizedStatusMessage(http.StatusConflict)
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
