package dataset

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/vdbload/client"
	vderrors "github.com/23skdu/vdbload/internal/errors"
)

// Source yields the vectors of one transaction.
type Source interface {
	Transaction(ctx context.Context, txn int) ([]client.Vector, error)
}

// Row is one vector in a dataset file.
type Row struct {
	ID     int64     `parquet:"id"`
	Values []float32 `parquet:"values"`
}

// WriteParquet writes txnCount transactions from src to path as a single
// zstd-compressed Parquet file and returns the number of rows written.
func WriteParquet(ctx context.Context, path string, src Source, txnCount int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, vderrors.WrapDatasetError(err, "write_parquet", "create file")
	}
	defer f.Close()

	pw := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd))

	var total int64
	for txn := 0; txn < txnCount; txn++ {
		vectors, err := src.Transaction(ctx, txn)
		if err != nil {
			_ = pw.Close()
			return total, err
		}
		rows := make([]Row, len(vectors))
		for i, v := range vectors {
			rows[i] = Row{ID: int64(v.ID), Values: v.Values}
		}
		n, err := pw.Write(rows)
		total += int64(n)
		if err != nil {
			_ = pw.Close()
			return total, vderrors.WrapDatasetError(err, "write_parquet", "write rows").WithContext("transaction", txn)
		}
	}

	if err := pw.Close(); err != nil {
		return total, vderrors.WrapDatasetError(err, "write_parquet", "close writer")
	}
	if err := f.Close(); err != nil {
		return total, vderrors.WrapDatasetError(err, "write_parquet", "close file")
	}
	return total, nil
}

// ParquetSource reads transactions back from a dataset file. Transaction t
// covers rows [t*perTxn, (t+1)*perTxn); the last one may be shorter.
type ParquetSource struct {
	path   string
	perTxn int
	rows   int64
}

// OpenParquet inspects path and returns a Source splitting it into
// transactions of perTxn rows.
func OpenParquet(path string, perTxn int) (*ParquetSource, error) {
	if perTxn <= 0 {
		return nil, vderrors.NewValidationError("open_parquet", "rows per transaction must be positive")
	}
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return &ParquetSource{path: path, perTxn: perTxn, rows: pf.NumRows()}, nil
}

// Rows is the number of vectors in the file.
func (p *ParquetSource) Rows() int64 { return p.rows }

// Transactions is the number of transactions the file can feed.
func (p *ParquetSource) Transactions() int {
	return int((p.rows + int64(p.perTxn) - 1) / int64(p.perTxn))
}

// Transaction reads the rows of transaction txn.
func (p *ParquetSource) Transaction(ctx context.Context, txn int) ([]client.Vector, error) {
	start := int64(txn) * int64(p.perTxn)
	if txn < 0 || start >= p.rows {
		return nil, vderrors.New(vderrors.ErrorTypeDataset, "read_parquet", "transaction out of range").
			WithContext("transaction", txn).WithContext("rows", p.rows)
	}
	count := min(int64(p.perTxn), p.rows-start)

	f, pf, err := openFile(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := parquet.NewGenericReader[Row](pf)
	defer r.Close()
	if err := r.SeekToRow(start); err != nil {
		return nil, vderrors.WrapDatasetError(err, "read_parquet", "seek")
	}

	rows := make([]Row, count)
	for read := 0; read < len(rows); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(rows[read:])
		read += n
		if errors.Is(err, io.EOF) {
			if read < len(rows) {
				return nil, vderrors.New(vderrors.ErrorTypeDataset, "read_parquet", "unexpected end of file")
			}
			break
		}
		if err != nil {
			return nil, vderrors.WrapDatasetError(err, "read_parquet", "read rows")
		}
	}

	out := make([]client.Vector, len(rows))
	for i, row := range rows {
		out[i] = client.Vector{ID: uint64(row.ID), Values: row.Values}
	}
	return out, nil
}

func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, vderrors.WrapDatasetError(err, "open_parquet", "open file")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, vderrors.WrapDatasetError(err, "open_parquet", "stat file")
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, vderrors.WrapDatasetError(err, "open_parquet", "read footer")
	}
	return f, pf, nil
}
