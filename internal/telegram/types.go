package telegram

import "fmt"

// Command представляет команду бота
type Command string

const (
	CmdStart     Command = "start"
	CmdHelp      Command = "help"
	CmdWhoAmI    Command = "whoami"
	CmdBalance   Command = "balance"
	CmdCampaigns Command = "campaigns"
	CmdEmployee  Command = "employee"
	CmdPayout    Command = "payout"
	CmdArchive   Command = "archive"
)

func (c Command) String() string {
	return string(c)
}

func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdHelp, CmdWhoAmI, CmdBalance, CmdCampaigns,
		CmdEmployee, CmdPayout, CmdArchive:
		return true
	}
	return false
}

// NeedsSession - команда работает только для сотрудника, привязанного к Telegram
func (c Command) NeedsSession() bool {
	switch c {
	case CmdStart, CmdHelp, CmdWhoAmI:
		return false
	}
	return true
}

// IsPrivileged - команда меняет деньги или данные всей редакции
func (c Command) IsPrivileged() bool {
	switch c {
	case CmdPayout, CmdArchive:
		return true
	}
	return false
}

// CallbackPrefix представляет префиксы callback данных
type CallbackPrefix string

const (
	CallbackPayoutConfirm CallbackPrefix = "payout_ok_"
	CallbackPayoutCancel  CallbackPrefix = "payout_no_"
)

func (c CallbackPrefix) String() string {
	return string(c)
}

func (c CallbackPrefix) WithID(id interface{}) string {
	return string(c) + fmt.Sprintf("%v", id)
}
