package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RegistryABI is the interface of the credential registry contract
const RegistryABI = `[
  {"type":"function","name":"issueCredential","stateMutability":"nonpayable",
   "inputs":[{"name":"holder","type":"address"},{"name":"credentialHash","type":"bytes32"},{"name":"metadataURI","type":"string"}],
   "outputs":[{"name":"credentialId","type":"uint256"}]},
  {"type":"function","name":"revokeCredential","stateMutability":"nonpayable",
   "inputs":[{"name":"credentialHash","type":"bytes32"}],"outputs":[]},
  {"type":"event","name":"CredentialIssued","anonymous":false,
   "inputs":[{"name":"credentialHash","type":"bytes32","indexed":true},
             {"name":"holder","type":"address","indexed":true},
             {"name":"credentialId","type":"uint256","indexed":false},
             {"name":"metadataURI","type":"string","indexed":false}]},
  {"type":"event","name":"CredentialRevoked","anonymous":false,
   "inputs":[{"name":"credentialHash","type":"bytes32","indexed":true}]}
]`

const (
	methodIssue  = "issueCredential"
	methodRevoke = "revokeCredential"
	eventIssued  = "CredentialIssued"
)

var registryABI = mustParseABI(RegistryABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParsedABI returns the parsed registry ABI
func ParsedABI() abi.ABI {
	return registryABI
}
