package main

import (
	"fmt"
	"time"

	"github.com/funtonic/taskserver/api/proto/funtonicpb"
	"github.com/funtonic/taskserver/internal/signedpayload"
	"github.com/funtonic/taskserver/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

func dial(cfg *commanderConfig) (*grpc.ClientConn, error) {
	tlsCfg := tlsconfig.Config{CACert: cfg.TLSCA, Cert: cfg.TLSCert, Key: cfg.TLSKey, ServerDomain: cfg.TLSServerName}
	if tlsCfg.Enabled() {
		creds, err := tlsCfg.ClientCredentials()
		if err != nil {
			return nil, fmt.Errorf("build TLS credentials: %w", err)
		}
		return grpc.NewClient(cfg.ServerAddr, grpc.WithTransportCredentials(creds))
	}
	return grpc.NewClient(cfg.ServerAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// signPayload marshals msg and signs it with the commander's key, producing
// the SignedPayload every request travels in (§4.3).
func signPayload(cfg *commanderConfig, msg proto.Message) (*funtonicpb.SignedPayload, error) {
	key, err := cfg.signingKey()
	if err != nil {
		return nil, err
	}
	body, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env, err := signedpayload.Sign(body, key, cfg.KeyID, 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	return &funtonicpb.SignedPayload{
		Payload:        env.Payload,
		Nonce:          env.Nonce,
		ValidUntilSecs: env.ValidUntilSecs,
		Signature:      env.Signature,
		KeyId:          env.KeyID,
	}, nil
}
