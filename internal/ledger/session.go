package ledger

import "context"

// Role представляет роль пользователя портала
type Role string

const (
	RoleSuper    Role = "super"
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleEmployee Role = "employee"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleSuper, RoleAdmin, RoleEditor, RoleEmployee:
		return true
	}
	return false
}

// IsPrivileged - роли, которым доступны удаление заказов, выплаты и ручные проводки
func (r Role) IsPrivileged() bool {
	return r == RoleSuper || r == RoleAdmin
}

func (r Role) DisplayName() string {
	switch r {
	case RoleSuper:
		return "суперадмин"
	case RoleAdmin:
		return "администратор"
	case RoleEditor:
		return "редактор"
	case RoleEmployee:
		return "сотрудник"
	}
	return "неизвестная роль"
}

// Session - личность и роль текущего пользователя
type Session struct {
	UserID      uint
	DisplayName string
	Role        Role
}

type sessionKey struct{}

// WithSession кладёт сессию в контекст запроса
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom достаёт сессию из контекста
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// System - сессия фоновых заданий и CLI; пользователя за ней нет
var System = Session{DisplayName: "Система", Role: RoleSuper}

func requireSession(ctx context.Context) (Session, error) {
	s, ok := SessionFrom(ctx)
	if !ok || !s.Role.IsValid() {
		return Session{}, ErrUnauthorizedf("no session in context")
	}
	return s, nil
}

func requirePrivileged(ctx context.Context, op string) (Session, error) {
	s, err := requireSession(ctx)
	if err != nil {
		return s, err
	}
	if !s.Role.IsPrivileged() {
		return s, ErrForbiddenf("%s requires a privileged role, user %d has %q", op, s.UserID, s.Role)
	}
	return s, nil
}

// idPtr - id для колонок *_id; у системной сессии его нет
func (s Session) idPtr() *uint {
	if s.UserID == 0 {
		return nil
	}
	id := s.UserID
	return &id
}

// owns: автор записи или привилегированная роль; для старых строк без id сверяем имя
func (s Session) owns(ownerID *uint, ownerName string) bool {
	if s.Role.IsPrivileged() {
		return true
	}
	if ownerID != nil {
		return s.UserID != 0 && *ownerID == s.UserID
	}
	return ownerName != "" && ownerName == s.DisplayName
}
