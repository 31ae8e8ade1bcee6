package xmpp

import (
	"crypto/tls"
	"errors"
	"strings"

	"github.com/mattn/go-xmpp"
	log "github.com/sirupsen/logrus"
)

type (
	// Config for the notifier.
	Config struct {
		Host     string
		Jid      string
		Password string
		To       string
	}

	// Xmpp sends one-way notifications to the shore operator.
	Xmpp struct {
		Config Config
	}
)

// Configured reports whether enough of the config is present to send.
func (x Xmpp) Configured() bool {
	return len(x.Config.Jid) > 0 && len(x.Config.Password) > 0 && len(x.Config.To) > 0
}

func serverName(jid string) string {
	return strings.Split(jid, "@")[1]
}

// Send delivers a chat message. Each send is its own short-lived session;
// the boat's data link comes and goes.
func (x Xmpp) Send(message string) error {

	if !x.Configured() {
		return errors.New("missing xmpp config")
	}

	host := x.Config.Host
	if len(host) == 0 {
		host = serverName(x.Config.Jid)
	}

	xmpp.DefaultConfig = tls.Config{
		InsecureSkipVerify: true,
	}

	options := xmpp.Options{
		Host:          host,
		User:          x.Config.Jid,
		Password:      x.Config.Password,
		NoTLS:         true,
		StartTLS:      true,
		Debug:         false,
		Session:       false,
		Status:        "xa",
		StatusMessage: "At sea",
	}

	talk, err := options.NewClient()
	if err != nil {
		log.WithError(err).Error("Cannot create xmpp client")
		return err
	}
	defer talk.Close()

	_, err = talk.Send(xmpp.Chat{Remote: x.Config.To, Type: "chat", Text: message})
	return err
}
