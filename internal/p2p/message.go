package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/gabapcia/powchain/internal/ledger"
)

// MessageType tags the payload carried by an envelope.
type MessageType string

const (
	TypeNewTransaction MessageType = "new_transaction"
	TypeNewBlock       MessageType = "new_block"
	TypeChainRequest   MessageType = "chain_request"
	TypeChainResponse  MessageType = "chain_response"
)

// Message is one of NewTransaction, NewBlock, ChainRequest or ChainResponse.
type Message interface {
	Type() MessageType
	isMessage()
}

// NewTransaction gossips a pending transfer.
type NewTransaction struct {
	Transaction ledger.Transaction `json:"transaction"`
}

// NewBlock gossips a freshly sealed or accepted block.
type NewBlock struct {
	Block ledger.Block `json:"block"`
}

// ChainRequest asks a peer for its full active chain.
type ChainRequest struct{}

// ChainResponse answers a ChainRequest with the sender's active chain.
type ChainResponse struct {
	Blocks []ledger.Block `json:"blocks"`
}

func (NewTransaction) Type() MessageType { return TypeNewTransaction }
func (NewBlock) Type() MessageType       { return TypeNewBlock }
func (ChainRequest) Type() MessageType   { return TypeChainRequest }
func (ChainResponse) Type() MessageType  { return TypeChainResponse }

func (NewTransaction) isMessage() {}
func (NewBlock) isMessage()       {}
func (ChainRequest) isMessage()   {}
func (ChainResponse) isMessage()  {}

type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage wraps m in its typed JSON envelope.
func EncodeMessage(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Type(), err)
	}

	return json.Marshal(envelope{
		Type:    m.Type(),
		Payload: payload,
	})
}

// DecodeMessage parses an envelope. Any failure wraps ErrMalformedMessage.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformedMessage, env.Type)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case TypeNewTransaction:
		m, err = decodePayload[NewTransaction](env.Payload)
	case TypeNewBlock:
		m, err = decodePayload[NewBlock](env.Payload)
	case TypeChainRequest:
		m, err = decodePayload[ChainRequest](env.Payload)
	case TypeChainResponse:
		m, err = decodePayload[ChainResponse](env.Payload)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, env.Type, err)
	}

	return m, nil
}

func decodePayload[T Message](payload json.RawMessage) (T, error) {
	var m T
	err := json.Unmarshal(payload, &m)
	return m, err
}
