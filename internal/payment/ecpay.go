// Package payment implements the gateway-facing helpers for ECPay
// callbacks: CheckMacValue signing/verification and the merchant trade
// number that carries the booking id through the gateway round-trip.
package payment

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ECPayConfig holds the merchant credentials used to sign and verify
// gateway parameters.
type ECPayConfig struct {
	MerchantID string
	HashKey    string
	HashIV     string
}

// ecpayEncodeReplacer restores the characters ECPay's dotNET-style URL
// encoding leaves unescaped. Applied after lower-casing the encoded
// string.
var ecpayEncodeReplacer = strings.NewReplacer(
	"%2d", "-",
	"%5f", "_",
	"%2e", ".",
	"%21", "!",
	"%2a", "*",
	"%28", "(",
	"%29", ")",
	"%7e", "~",
)

// CheckMacValue computes the ECPay signature over the given parameters:
// keys sorted ascending, wrapped in HashKey/HashIV, URL-encoded,
// lower-cased with ECPay's character exceptions, MD5-hashed and
// upper-cased.
func CheckMacValue(cfg ECPayConfig, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "CheckMacValue" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("HashKey=" + cfg.HashKey)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + params[k])
	}
	b.WriteString("&HashIV=" + cfg.HashIV)

	encoded := strings.ToLower(url.QueryEscape(b.String()))
	encoded = ecpayEncodeReplacer.Replace(encoded)

	sum := md5.Sum([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyCallback checks the CheckMacValue of a callback form post
// against a locally computed signature. Multi-valued fields take their
// first value, matching how the gateway submits the form.
func VerifyCallback(cfg ECPayConfig, form url.Values) bool {
	received := form.Get("CheckMacValue")
	if received == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k, vs := range form {
		if k == "CheckMacValue" || len(vs) == 0 {
			continue
		}
		params[k] = vs[0]
	}
	return received == CheckMacValue(cfg, params)
}

// CheckoutURL is the ECPay AioCheckOut endpoint the signed form is
// posted to. The staging host is used until production credentials are
// configured.
const CheckoutURL = "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"

// CheckoutFields assembles the signed form parameters for an ECPay
// AioCheckOut payment of a booking. TotalAmount is whole NTD; ticket
// prices are stored in cents and are always whole-dollar amounts.
func CheckoutFields(cfg ECPayConfig, returnURL string, bookingID, amountCents uint64, itemName string, now time.Time) map[string]string {
	fields := map[string]string{
		"MerchantID":        cfg.MerchantID,
		"MerchantTradeNo":   BuildMerchantTradeNo(bookingID, now),
		"MerchantTradeDate": now.Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatUint(amountCents/100, 10),
		"TradeDesc":         "Movie ticket booking",
		"ItemName":          itemName,
		"ReturnURL":         returnURL,
		"ChoosePayment":     "ALL",
		"EncryptType":       "1",
	}
	fields["CheckMacValue"] = CheckMacValue(cfg, fields)
	return fields
}

// merchantTradeNoPrefix tags trade numbers produced by this service.
const merchantTradeNoPrefix = "BK"

// BuildMerchantTradeNo derives the gateway order token from a booking
// id: "BK" + zero-padded 6-digit booking id + the trailing 12 digits of
// the current unix-millisecond clock. ECPay requires the value to be
// unique per payment attempt, hence the timestamp tail.
func BuildMerchantTradeNo(bookingID uint64, now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 12 {
		ms = ms[len(ms)-12:]
	}
	return fmt.Sprintf("%s%06d%s", merchantTradeNoPrefix, bookingID, ms)
}

// ParseMerchantTradeNo recovers the booking id from a merchant trade
// number built by BuildMerchantTradeNo.
func ParseMerchantTradeNo(tradeNo string) (uint64, error) {
	if !strings.HasPrefix(tradeNo, merchantTradeNoPrefix) || len(tradeNo) < 8 {
		return 0, errors.New("malformed merchant trade number")
	}
	id, err := strconv.ParseUint(tradeNo[2:8], 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("malformed merchant trade number")
	}
	return id, nil
}
