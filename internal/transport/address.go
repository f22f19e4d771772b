package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Address identifies one streaming connection. Direct connections carry a single target id;
// group connections carry the participant set with the group id first.
type Address struct {
	Endpoint string
	ClientID int64
	TargetID string
	Members  []string
}

// DirectAddress addresses a connection between the local user and one counterpart.
func DirectAddress(endpoint string, clientID int64, targetID string) Address {
	return Address{Endpoint: endpoint, ClientID: clientID, TargetID: targetID}
}

// GroupAddress addresses a group connection. participants[0] must be the group id.
func GroupAddress(endpoint string, clientID int64, participants []string) Address {
	members := make([]string, len(participants))
	copy(members, participants)
	return Address{Endpoint: endpoint, ClientID: clientID, Members: members}
}

// IsGroup reports whether the address is a group address.
func (a Address) IsGroup() bool {
	return a.TargetID == "" && len(a.Members) > 0
}

// Key identifies the addressing inputs. A change of key means the connection must be reopened.
func (a Address) Key() string {
	if a.IsGroup() {
		return fmt.Sprintf("%d|group|%s", a.ClientID, strings.Join(a.Members, ","))
	}
	return fmt.Sprintf("%d|direct|%s", a.ClientID, a.TargetID)
}

// URL renders the connection URL with its addressing query.
func (a Address) URL() (string, error) {
	if a.ClientID == 0 {
		return "", errors.New("transport: missing client id")
	}
	if a.TargetID == "" && len(a.Members) == 0 {
		return "", errors.New("transport: address has neither target nor members")
	}
	u, err := url.Parse(a.Endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: endpoint: %w", err)
	}
	q := u.Query()
	q.Set("clientid", strconv.FormatInt(a.ClientID, 10))
	if a.IsGroup() {
		q.Set("members", strings.Join(a.Members, ","))
	} else {
		q.Set("targetid", a.TargetID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
