package ui

import (
	"chatdesk/chat"
	"chatdesk/model"
)

// StoreChangedMsg is sent whenever a store notifies its subscribers. main
// forwards store notifications into the program with it.
type StoreChangedMsg struct{}

type replyDoneMsg struct {
	Result *chat.Result
	Err    error
}

type modelsListMsg struct {
	ProviderID string
	Models     []model.ModelInfo
	Err        error
}

type connectionTestedMsg struct {
	ProviderID string
	OK         bool
	Err        error
}

// noticeMsg shows a one-line notice in the status bar.
type noticeMsg struct {
	Text  string
	Error bool
}

func notice(text string) noticeMsg { return noticeMsg{Text: text} }

func errorNotice(err error) noticeMsg { return noticeMsg{Text: err.Error(), Error: true} }
