package catalog

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/georgemunganga/pharma-gateway/internal/modules/wallet"
)

const pharmaSupplyABI = `[
 {"type":"function","name":"getAllDrugs","stateMutability":"view","inputs":[],
  "outputs":[{"name":"ids","type":"uint256[]"},{"name":"names","type":"string[]"},{"name":"batches","type":"string[]"},
             {"name":"prices","type":"uint256[]"},{"name":"stages","type":"uint8[]"},{"name":"owners","type":"address[]"}]},
 {"type":"function","name":"getDrugsByOwner","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],
  "outputs":[{"name":"ids","type":"uint256[]"},{"name":"names","type":"string[]"},{"name":"batches","type":"string[]"},
             {"name":"prices","type":"uint256[]"},{"name":"stages","type":"uint8[]"},{"name":"owners","type":"address[]"}]},
 {"type":"function","name":"totalDrugs","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"drugs","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],
  "outputs":[{"name":"id","type":"uint256"},{"name":"name","type":"string"},{"name":"batch","type":"string"},
             {"name":"price","type":"uint256"},{"name":"stage","type":"uint8"},{"name":"owner","type":"address"}]},
 {"type":"function","name":"addDrug","stateMutability":"nonpayable",
  "inputs":[{"name":"name","type":"string"},{"name":"batch","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"updateDrug","stateMutability":"nonpayable",
  "inputs":[{"name":"id","type":"uint256"},{"name":"name","type":"string"},{"name":"batch","type":"string"},{"name":"price","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"removeDrug","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"transferDrug","stateMutability":"nonpayable",
  "inputs":[{"name":"id","type":"uint256"},{"name":"stage","type":"uint8"},{"name":"to","type":"address"}],"outputs":[]}
]`

// adminGasLimit covers every admin write on the supply contract.
const adminGasLimit = 300000

var supplyABI = mustParseABI(pharmaSupplyABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse supply contract abi: %v", err))
	}
	return parsed
}

type contractRepo struct {
	caller  ethereum.ContractCaller
	address common.Address
}

// NewContractRepository reads listings straight from the supply contract.
func NewContractRepository(caller ethereum.ContractCaller, address common.Address) Repository {
	return &contractRepo{caller: caller, address: address}
}

func (r *contractRepo) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := supplyABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := supplyABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *contractRepo) List(ctx context.Context) ([]Drug, error) {
	values, err := r.call(ctx, "getAllDrugs")
	if err != nil {
		log.Printf("catalog: getAllDrugs failed, enumerating drugs(): %v", err)
		return r.enumerate(ctx)
	}
	return drugsFromColumns(values)
}

func (r *contractRepo) ListByOwner(ctx context.Context, owner string) ([]Drug, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("%w: invalid owner address %q", ErrInvalidDrug, owner)
	}
	values, err := r.call(ctx, "getDrugsByOwner", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	return drugsFromColumns(values)
}

func (r *contractRepo) enumerate(ctx context.Context) ([]Drug, error) {
	values, err := r.call(ctx, "totalDrugs")
	if err != nil {
		return nil, err
	}
	total, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("totalDrugs: unexpected output %T", values[0])
	}

	drugs := make([]Drug, 0, total.Int64())
	for i := int64(0); i < total.Int64(); i++ {
		row, err := r.call(ctx, "drugs", big.NewInt(i))
		if err != nil {
			return nil, err
		}
		d, err := drugFromTuple(row)
		if err != nil {
			return nil, err
		}
		drugs = append(drugs, d)
	}
	return drugs, nil
}

func drugsFromColumns(values []interface{}) ([]Drug, error) {
	if len(values) != 6 {
		return nil, fmt.Errorf("expected 6 output columns, got %d", len(values))
	}
	ids, ok1 := values[0].([]*big.Int)
	names, ok2 := values[1].([]string)
	batches, ok3 := values[2].([]string)
	prices, ok4 := values[3].([]*big.Int)
	stages, ok5 := values[4].([]uint8)
	owners, ok6 := values[5].([]common.Address)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, fmt.Errorf("unexpected output column types")
	}
	n := len(ids)
	if len(names) != n || len(batches) != n || len(prices) != n || len(stages) != n || len(owners) != n {
		return nil, fmt.Errorf("output columns have mismatched lengths")
	}

	drugs := make([]Drug, 0, n)
	for i := 0; i < n; i++ {
		drugs = append(drugs, newDrug(ids[i].Int64(), names[i], batches[i], prices[i], Stage(stages[i]), owners[i].Hex()))
	}
	return drugs, nil
}

func drugFromTuple(values []interface{}) (Drug, error) {
	if len(values) != 6 {
		return Drug{}, fmt.Errorf("expected 6 drug fields, got %d", len(values))
	}
	id, ok1 := values[0].(*big.Int)
	name, ok2 := values[1].(string)
	batch, ok3 := values[2].(string)
	price, ok4 := values[3].(*big.Int)
	stage, ok5 := values[4].(uint8)
	owner, ok6 := values[5].(common.Address)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return Drug{}, fmt.Errorf("unexpected drug field types")
	}
	return newDrug(id.Int64(), name, batch, price, Stage(stage), owner.Hex()), nil
}

// SignerSource hands out a signer for the connected wallet account.
type SignerSource interface {
	Signer() (wallet.Signer, error)
}

// ContractWriter submits admin transactions to the supply contract and
// waits for them to be mined.
type ContractWriter struct {
	signers SignerSource
	address common.Address
}

func NewContractWriter(signers SignerSource, address common.Address) *ContractWriter {
	return &ContractWriter{signers: signers, address: address}
}

func (w *ContractWriter) AddDrug(ctx context.Context, in DrugInput) (*types.Receipt, error) {
	return w.transact(ctx, "addDrug", in.Name, in.Batch, EtherToWei(in.Price))
}

func (w *ContractWriter) UpdateDrug(ctx context.Context, id int64, in DrugInput) (*types.Receipt, error) {
	return w.transact(ctx, "updateDrug", big.NewInt(id), in.Name, in.Batch, EtherToWei(in.Price))
}

func (w *ContractWriter) RemoveDrug(ctx context.Context, id int64) (*types.Receipt, error) {
	return w.transact(ctx, "removeDrug", big.NewInt(id))
}

// TransferDrug moves a drug to stage and hands it to the signing account.
func (w *ContractWriter) TransferDrug(ctx context.Context, id int64, stage Stage) (*types.Receipt, error) {
	signer, err := w.signers.Signer()
	if err != nil {
		return nil, err
	}
	return w.send(ctx, signer, "transferDrug", big.NewInt(id), uint8(stage), signer.Address())
}

func (w *ContractWriter) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	signer, err := w.signers.Signer()
	if err != nil {
		return nil, err
	}
	return w.send(ctx, signer, method, args...)
}

func (w *ContractWriter) send(ctx context.Context, signer wallet.Signer, method string, args ...interface{}) (*types.Receipt, error) {
	data, err := supplyABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	hash, err := signer.SendTransaction(ctx, wallet.TxRequest{To: w.address, GasLimit: adminGasLimit, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := signer.WaitMined(ctx, hash)
	if err != nil {
		return receipt, fmt.Errorf("%s: %w", method, err)
	}
	return receipt, nil
}
