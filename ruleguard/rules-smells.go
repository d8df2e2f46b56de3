package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guards with the same return can be merged with ||.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

// secrets flags credentials handed to the logger or to error text unmasked.
func secrets(m dsl.Matcher) {
	m.Match(`zap.String($key, $x.Credential)`, `zap.String($key, $x.APIKey)`).
		Report(`credential passed to the logger; log generation.MaskSecret($x) instead`)

	m.Match(`fmt.Errorf($fmt, $*_, $x.Credential, $*_)`, `fmt.Errorf($fmt, $*_, $x.APIKey, $*_)`).
		Report(`credential formatted into an error; errors may reach the websocket client`)
}

// detached flags queries that drop the caller's context.
func detached(m dsl.Matcher) {
	m.Match(`$db.Exec($*_)`, `$db.Query($*_)`, `$db.QueryRow($*_)`).
		Where(m["db"].Type.Is(`*sql.DB`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`use the Context variant of $db method`)
}
