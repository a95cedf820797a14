package errors

import (
	"fmt"
	"strings"
)

// Code identifies a database engine error condition. Codes are part of the
// wire protocol: they travel to clients inside status messages.
type Code int32

const (
	// NotFound
	CodeDatabaseDoesNotExist             Code = 2001
	CodeTableDoesNotExist                Code = 2002
	CodeColumnDoesNotExist               Code = 2003
	CodeColumnSetDoesNotExist            Code = 2004
	CodeColumnDefinitionDoesNotExist     Code = 2005
	CodeConstraintDoesNotExist           Code = 2006
	CodeConstraintDefinitionDoesNotExist Code = 2007
	CodeIndexDoesNotExist                Code = 2008
	CodeUserDoesNotExist                 Code = 2009

	// AlreadyExists
	CodeDatabaseAlreadyExists   Code = 2101
	CodeTableAlreadyExists      Code = 2102
	CodeConstraintAlreadyExists Code = 2103
	CodeUserAlreadyExists       Code = 2104

	// Validation
	CodeInvalidDatabaseName                      Code = 2201
	CodeInvalidTableName                         Code = 2202
	CodeInvalidColumnName                        Code = 2203
	CodeInvalidConstraintName                    Code = 2204
	CodeInvalidUserName                          Code = 2205
	CodeCreateTableDuplicateColumnName           Code = 2206
	CodeCreateTableDuplicateConstraintName       Code = 2207
	CodeCreateTableDuplicateColumnConstraintType Code = 2208
	CodeTableTypeNotSupported                    Code = 2209

	// TypeMismatch
	CodeColumnConstraintTypeDoesNotMatch Code = 2301
	CodeTableConstraintTypeDoesNotMatch  Code = 2302
	CodeConstraintNotSupported           Code = 2303

	// Integrity
	CodeTableDoesNotBelongToDatabase      Code = 2401
	CodeColumnDoesNotBelongToTable        Code = 2402
	CodeMissingColumnDefinitionsForColumn Code = 2403
	CodeMissingSystemTable                Code = 2404

	// Resource
	CodeResourceExhausted           Code = 2501
	CodeCannotReleaseUnusedDatabase Code = 2502
	CodeCannotDropSystemObject      Code = 2503
	CodeCannotDropUsedDatabase      Code = 2504

	// I/O and configuration
	CodeCannotCreateInstanceDataDir                Code = 2601
	CodeCannotCreateDatabaseDataDir                Code = 2602
	CodeCannotCreateDatabaseInitializationFlagFile Code = 2603
	CodeCannotCreateDatabaseMetadataFile           Code = 2604
	CodeCannotOpenDatabaseMetadataFile             Code = 2605
	CodeCannotWriteDatabaseMetadataFile            Code = 2606
	CodeDatabaseDataFolderDoesNotExist             Code = 2607
	CodeDatabaseInitFileDoesNotExist               Code = 2608
	CodeCannotSaveSystemObjects                    Code = 2609
	CodeCannotLoadSystemObjects                    Code = 2610
	CodeInvalidConfigurationOption                 Code = 2611
	CodeCannotCreateInstanceInitializationFlagFile Code = 2612
	CodeCipherUnknown                              Code = 2613
	CodeInvalidCipherKey                           Code = 2614
)

// DatabaseError is a single coded engine error.
type DatabaseError struct {
	Code    Code
	Message string
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func New(code Code, format string, args ...interface{}) *DatabaseError {
	return &DatabaseError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HasCode reports whether err is a DatabaseError carrying the given code.
func HasCode(err error, code Code) bool {
	if e, ok := err.(*DatabaseError); ok {
		return e.Code == code
	}
	if c, ok := err.(*CompoundError); ok {
		for _, e := range c.Errors {
			if e.Code == code {
				return true
			}
		}
	}
	return false
}

// CodeOf returns the code of err, or 0 when err is not a DatabaseError.
func CodeOf(err error) Code {
	if e, ok := err.(*DatabaseError); ok {
		return e.Code
	}
	return 0
}

// CompoundError accumulates per-record errors produced during DDL validation
// and is raised once after the whole batch has been examined.
type CompoundError struct {
	Errors []*DatabaseError
}

func (e *CompoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(e.Errors))
	for _, rec := range e.Errors {
		sb.WriteString(" ")
		sb.WriteString(rec.Error())
		sb.WriteString(";")
	}
	return sb.String()
}

func (e *CompoundError) Add(err *DatabaseError) {
	e.Errors = append(e.Errors, err)
}

func (e *CompoundError) Empty() bool {
	return len(e.Errors) == 0
}
