// internal/auth/bind.go
package auth

import (
	"errors"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
)

// AuthBindHandler 用认证器决定SMSC端是否接受绑定
type AuthBindHandler struct {
	auth *Authenticator
	// Sessions 返回某系统ID当前已绑定的会话数，nil时不检查MaxSessions
	Sessions func(systemID string) int
}

// NewAuthBindHandler 创建绑定处理器
func NewAuthBindHandler(a *Authenticator, sessions func(systemID string) int) *AuthBindHandler {
	return &AuthBindHandler{auth: a, Sessions: sessions}
}

// AuthorizeBind 返回ESME_ROK表示接受
func (h *AuthBindHandler) AuthorizeBind(req *session.BindRequest) protocol.CommandStatus {
	b := req.Bind
	account, err := h.auth.Authenticate(b.SystemID, b.Password, hostIP(req.RemoteAddr()))
	if err != nil {
		h.auth.log.Warning("认证失败 %s: %v", req.RemoteAddr(), err)
		return BindStatus(err)
	}

	if account.SystemType != "" && b.SystemType != account.SystemType {
		h.auth.log.Warning("系统类型不匹配 system_id=%s system_type=%q", b.SystemID, b.SystemType)
		return protocol.ESME_RINVSYSTYP
	}

	if account.MaxSessions > 0 && h.Sessions != nil && h.Sessions(b.SystemID) >= account.MaxSessions {
		h.auth.log.Warning("账户 %s 会话数已达上限 %d", b.SystemID, account.MaxSessions)
		return protocol.ESME_RBINDFAIL
	}
	return protocol.ESME_ROK
}

// BindStatus 将认证错误映射为bind_resp状态码
func BindStatus(err error) protocol.CommandStatus {
	switch {
	case err == nil:
		return protocol.ESME_ROK
	case errors.Is(err, ErrUnknownSystemID):
		return protocol.ESME_RINVSYSID
	case errors.Is(err, ErrInvalidPassword):
		return protocol.ESME_RINVPASWD
	default:
		return protocol.ESME_RBINDFAIL
	}
}
