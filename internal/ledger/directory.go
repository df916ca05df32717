package ledger

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"newsroom-ledger/internal/db"
)

// FindUserByNameOrID ищет пользователя сначала по id, затем по точному (регистрозависимому)
// совпадению имени: отображаемое имя, а если его нет - логин. Возвращает nil, nil если не найден.
func FindUserByNameOrID(tx *gorm.DB, name string, id *uint) (*db.User, error) {
	if id != nil && *id != 0 {
		var user db.User
		err := tx.First(&user, *id).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var candidates []db.User
	if err := tx.Where("display_name = ? OR username = ?", name, name).
		Order("id").Find(&candidates).Error; err != nil {
		return nil, err
	}
	// сравнение в Go: collation MySQL по умолчанию не различает регистр
	for i := range candidates {
		if candidates[i].Name() == name {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// ResolveDisplayName возвращает актуальное имя пользователя или fallback, если его нет
func ResolveDisplayName(tx *gorm.DB, id *uint, fallback string) (string, error) {
	if id == nil {
		return fallback, nil
	}
	user, err := FindUserByNameOrID(tx, "", id)
	if err != nil {
		return "", err
	}
	if user == nil {
		return fallback, nil
	}
	return user.Name(), nil
}

// userNames - снимок справочника id -> имя для пакетных операций
func userNames(tx *gorm.DB) (map[uint]string, error) {
	var users []db.User
	if err := tx.Select("id", "username", "display_name").Find(&users).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name()
	}
	return names, nil
}

// resolveUserID - id пользователя с таким именем или nil
func resolveUserID(tx *gorm.DB, name string) (*uint, error) {
	user, err := FindUserByNameOrID(tx, name, nil)
	if err != nil || user == nil {
		return nil, err
	}
	id := user.ID
	return &id, nil
}
