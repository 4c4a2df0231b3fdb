package store

import (
	"net/url"
	"strings"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/persistence"
)

// Key layout, every key under the owner's namespace:
//
//	<owner>/wf/<id>                               primary record
//	<owner>/type/<id>                             {category, state} of the last store
//	<owner>/src/<kind:id>                         owning workflow id
//	<owner>/idx/account/<account>/<id>            account membership
//	<owner>/idx/unit/<unit>/<id>                  unit membership
//	<owner>/idx/bucket/<category>/<state>/<id>    bucket membership
//	<owner>/idx/archive/<id>                      terminal workflows
const (
	spacePrimary = "wf"
	spaceType    = "type"
	spaceSource  = "src"
	spaceIndex   = "idx"

	indexAccount = "account"
	indexUnit    = "unit"
	indexBucket  = "bucket"
	indexArchive = "archive"
)

type keyspace struct {
	owner string
}

func segment(s string) string {
	return url.PathEscape(s)
}

func (k keyspace) key(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, segment(k.owner))

	for _, s := range segments {
		escaped = append(escaped, segment(s))
	}

	return persistence.JoinKey(escaped...)
}

func (k keyspace) prefix(segments ...string) string {
	return k.key(segments...) + "/"
}

func (k keyspace) primary(id string) string { return k.key(spacePrimary, id) }

func (k keyspace) typeRecord(id string) string { return k.key(spaceType, id) }

func (k keyspace) source(item models.SourceItem) string { return k.key(spaceSource, item.Key()) }

func (k keyspace) account(account, id string) string {
	return k.key(spaceIndex, indexAccount, account, id)
}

func (k keyspace) unit(unit, id string) string {
	return k.key(spaceIndex, indexUnit, unit, id)
}

func (k keyspace) bucket(category models.Category, state models.State, id string) string {
	return k.key(spaceIndex, indexBucket, string(category), string(state), id)
}

func (k keyspace) archive(id string) string {
	return k.key(spaceIndex, indexArchive, id)
}

// member returns the unescaped last segment of a membership key.
func member(key string) (string, error) {
	last := key[strings.LastIndex(key, "/")+1:]

	return url.PathUnescape(last)
}
