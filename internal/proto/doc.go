// Package proto declares the codex.v1.Codex gRPC service.
//
// Every method exchanges a google.protobuf.Struct. The typed messages in
// this package (Credentials, Tokens, Query, Result, ...) are converted to and
// from Struct through protojson, so both ends share one schema without
// generated code:
//
//	Ping            {}                          -> {status}
//	SignUp          Credentials                 -> Tokens
//	SignIn          Credentials                 -> Tokens
//	SignInOAuth     OAuthCredentials            -> Tokens
//	RefreshToken    RefreshRequest              -> Tokens
//	SignOut         RefreshRequest              -> {}
//	Select          Query{collection, filter}   -> Result{rows}
//	Insert          Query{collection, rows}     -> Result{rows}
//	Upsert          Query{rows, on_conflict}    -> Result{rows}
//	Update          Query{filter, patch}        -> Result{count}
//	Delete          Query{filter}               -> Result{count}
//	AvatarUploadURL UploadRequest               -> UploadTicket
package proto
